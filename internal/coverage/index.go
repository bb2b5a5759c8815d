package coverage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// StoreInfo is the slice of store data the index needs to collapse per-ZIP
// overrides and label results.
type StoreInfo struct {
	ID                    uuid.UUID
	Code                  string
	Name                  string
	DeliveryFee           float64
	MinOrderValue         float64
	FreeDeliveryThreshold *float64
}

// StoreDirectory resolves store records; implemented by the store package.
type StoreDirectory interface {
	StoreInfo(ctx context.Context, id uuid.UUID) (StoreInfo, error)
}

// AvailabilityChecker reports whether a store is effectively open to
// customers at an instant; implemented by store.AvailabilityService.
type AvailabilityChecker interface {
	IsOpen(ctx context.Context, storeID uuid.UUID, at time.Time) (bool, error)
}

// Index answers "which stores serve this ZIP right now". It sits on the
// landing-page hot path; the lookup is a single indexed query plus per-store
// availability reads.
type Index struct {
	repo         Repository
	stores       StoreDirectory
	availability AvailabilityChecker
}

func NewIndex(repo Repository, stores StoreDirectory, availability AvailabilityChecker) *Index {
	return &Index{repo: repo, stores: stores, availability: availability}
}

// ResolveStores returns the effectively-open stores covering the ZIP, with
// fee/min-order/SLA overrides applied, ordered by SLA then store code so
// pagination is stable. ErrUnsupportedZip means no store covers the ZIP at
// all; a covered ZIP whose stores are all closed yields an empty list.
func (ix *Index) ResolveStores(ctx context.Context, zip string) ([]ResolvedStore, error) {
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return nil, errors.New("coverage: zip is required")
	}

	rows, err := ix.repo.ActiveByZip(ctx, zip)
	if err != nil {
		return nil, fmt.Errorf("coverage: failed to load coverage for zip %s: %w", zip, err)
	}
	if len(rows) == 0 {
		return nil, ErrUnsupportedZip
	}

	now := time.Now()
	resolved := make([]ResolvedStore, 0, len(rows))
	for _, row := range rows {
		open, err := ix.availability.IsOpen(ctx, row.StoreID, now)
		if err != nil {
			return nil, fmt.Errorf("coverage: failed to check availability of store %s: %w", row.StoreID, err)
		}
		if !open {
			continue
		}

		info, err := ix.stores.StoreInfo(ctx, row.StoreID)
		if err != nil {
			return nil, fmt.Errorf("coverage: failed to load store %s: %w", row.StoreID, err)
		}
		resolved = append(resolved, resolve(row, info))
	}

	sort.Slice(resolved, func(i, j int) bool {
		if resolved[i].SLAMinutes != resolved[j].SLAMinutes {
			return resolved[i].SLAMinutes < resolved[j].SLAMinutes
		}
		return resolved[i].StoreCode < resolved[j].StoreCode
	})
	return resolved, nil
}

// ResolveStore returns the collapsed coverage terms for one (store, zip)
// pair; used by cart validation for the min-order check.
func (ix *Index) ResolveStore(ctx context.Context, storeID uuid.UUID, zip string) (*ResolvedStore, error) {
	row, err := ix.repo.ActiveByStoreZip(ctx, storeID, zip)
	if err != nil {
		if errors.Is(err, ErrCoverageNotFound) {
			return nil, ErrUnsupportedZip
		}
		return nil, fmt.Errorf("coverage: failed to load coverage for store %s zip %s: %w", storeID, zip, err)
	}

	info, err := ix.stores.StoreInfo(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("coverage: failed to load store %s: %w", storeID, err)
	}
	rs := resolve(*row, info)
	return &rs, nil
}

// SetCoverage is the store-staff mutation path.
func (ix *Index) SetCoverage(ctx context.Context, c *Coverage) error {
	c.Zip = strings.TrimSpace(c.Zip)
	if c.Zip == "" {
		return errors.New("coverage: zip is required")
	}
	if c.SLAMinutes <= 0 {
		return errors.New("coverage: sla minutes must be positive")
	}
	if c.DeliveryFee != nil && *c.DeliveryFee < 0 {
		return errors.New("coverage: delivery fee override must be non-negative")
	}
	if c.MinOrderValue != nil && *c.MinOrderValue < 0 {
		return errors.New("coverage: min order override must be non-negative")
	}

	if c.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("coverage: failed to generate coverage ID: %w", err)
		}
		c.ID = id
	}
	c.Active = true

	if err := ix.repo.SetCoverage(ctx, c); err != nil {
		log.Error().Err(err).Stringer("store_id", c.StoreID).Str("zip", c.Zip).Msg("coverage: failed to set coverage")
		return fmt.Errorf("coverage: failed to set coverage: %w", err)
	}
	log.Info().Stringer("store_id", c.StoreID).Str("zip", c.Zip).Msg("coverage set")
	return nil
}

func (ix *Index) Deactivate(ctx context.Context, storeID uuid.UUID, zip string) error {
	if err := ix.repo.Deactivate(ctx, storeID, zip); err != nil {
		return fmt.Errorf("coverage: failed to deactivate coverage: %w", err)
	}
	return nil
}

func resolve(c Coverage, info StoreInfo) ResolvedStore {
	rs := ResolvedStore{
		StoreID:               c.StoreID,
		StoreCode:             info.Code,
		StoreName:             info.Name,
		DeliveryFee:           info.DeliveryFee,
		MinOrderValue:         info.MinOrderValue,
		SLAMinutes:            c.SLAMinutes,
		FreeDeliveryThreshold: info.FreeDeliveryThreshold,
	}
	if c.DeliveryFee != nil {
		rs.DeliveryFee = *c.DeliveryFee
	}
	if c.MinOrderValue != nil {
		rs.MinOrderValue = *c.MinOrderValue
	}
	return rs
}
