package store

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"github.com/zombor/invoice-extractor/internal/apperr"
	"github.com/zombor/invoice-extractor/internal/invoice"
)

//go:embed masterdata.yaml
var defaultMasterData []byte

// MasterData is the reference set of companies and items.
type MasterData struct {
	Companies []invoice.Company `yaml:"companies" validate:"dive"`
	Items     []invoice.Item    `yaml:"items" validate:"dive"`
}

// DefaultMasterData returns the built-in companies and items.
func DefaultMasterData() (*MasterData, error) {
	return LoadMasterData(bytes.NewReader(defaultMasterData))
}

// LoadMasterData decodes and validates a YAML master-data document.
// Companies without a country are placed in India.
func LoadMasterData(r io.Reader) (*MasterData, error) {
	var md MasterData
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&md); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: decoding master data: %w", apperr.ErrInvalidInput, err)
	}

	for i := range md.Companies {
		if md.Companies[i].Country == "" {
			md.Companies[i].Country = invoice.DefaultCountry
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(md); err != nil {
		return nil, fmt.Errorf("%w: master data: %w", apperr.ErrInvalidInput, err)
	}
	return &md, nil
}

// SeedResult counts the records a Seed call added.
type SeedResult struct {
	Companies int
	Items     int
}

// Seed adds the companies and items of md that are not stored yet.
// Companies match on GSTIN and items on HSN/SAC, so seeding twice adds
// nothing the second time.
func (b *BoltDB) Seed(md *MasterData) (SeedResult, error) {
	var result SeedResult
	now := time.Now()

	err := b.db.Update(func(tx *bbolt.Tx) error {
		gstins := tx.Bucket([]byte(companyGSTINBucket))
		for _, c := range md.Companies {
			if gstins.Get([]byte(c.GSTIN)) != nil {
				continue
			}
			c.ID = uuid.NewString()
			c.CreatedAt = now
			if err := putCompany(tx, &c); err != nil {
				return err
			}
			result.Companies++
		}

		codes := tx.Bucket([]byte(itemHSNBucket))
		for _, item := range md.Items {
			if codes.Get([]byte(item.HSNSAC)) != nil {
				continue
			}
			item.ID = uuid.NewString()
			item.CreatedAt = now
			if err := putItem(tx, &item); err != nil {
				return err
			}
			result.Items++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("%w: seeding master data: %w", apperr.ErrPersistence, err)
	}
	return result, nil
}
