// Package store persists jobs, master data and finalized invoices in BoltDB.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/invoice-extractor/internal/apperr"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/jobs"
)

const (
	jobsBucket           = "jobs"
	companiesBucket      = "companies"
	companyGSTINBucket   = "company_gstin"
	itemsBucket          = "items"
	itemHSNBucket        = "item_hsn"
	invoicesBucket       = "invoices"
	invoiceLinesBucket   = "invoice_lines"
	invoiceNumbersBucket = "invoice_numbers"
)

// DefaultPerPage is used when a listing asks for a non-positive page size.
const DefaultPerPage = 10

// ErrDuplicate is returned when a unique key is already taken.
var ErrDuplicate = errors.New("duplicate key")

var allBuckets = []string{
	jobsBucket,
	companiesBucket,
	companyGSTINBucket,
	itemsBucket,
	itemHSNBucket,
	invoicesBucket,
	invoiceLinesBucket,
	invoiceNumbersBucket,
}

// BoltDB stores everything in a single bbolt file.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the database at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// Close closes the database
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func putJSON(bucket *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return bucket.Put([]byte(key), data)
}

// CreateJob stores a new job
func (b *BoltDB) CreateJob(ctx context.Context, job *jobs.Job) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		if bucket.Get([]byte(job.ID)) != nil {
			return fmt.Errorf("job %s: %w", job.ID, ErrDuplicate)
		}
		return putJSON(bucket, job.ID, job)
	})
}

// UpdateJob overwrites a job when its status may move to the new one
func (b *BoltDB) UpdateJob(ctx context.Context, job *jobs.Job) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		data := bucket.Get([]byte(job.ID))
		if data == nil {
			return fmt.Errorf("job %s: %w", job.ID, apperr.ErrNotFound)
		}

		var current jobs.Job
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("unmarshaling job: %w", err)
		}
		if !current.Status.CanTransition(job.Status) {
			return fmt.Errorf("job %s %s -> %s: %w", job.ID, current.Status, job.Status, jobs.ErrInvalidTransition)
		}
		return putJSON(bucket, job.ID, job)
	})
}

// GetJob retrieves a job by ID
func (b *BoltDB) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	var job *jobs.Job
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(jobsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func putCompany(tx *bbolt.Tx, c *invoice.Company) error {
	index := tx.Bucket([]byte(companyGSTINBucket))
	if existing := index.Get([]byte(c.GSTIN)); existing != nil && string(existing) != c.ID {
		return fmt.Errorf("company with GSTIN %s: %w", c.GSTIN, ErrDuplicate)
	}
	if err := putJSON(tx.Bucket([]byte(companiesBucket)), c.ID, c); err != nil {
		return err
	}
	return index.Put([]byte(c.GSTIN), []byte(c.ID))
}

// SaveCompany stores a company. GSTINs are unique.
func (b *BoltDB) SaveCompany(c *invoice.Company) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putCompany(tx, c)
	})
}

// FindCompanyByGSTIN looks a company up by its GSTIN
func (b *BoltDB) FindCompanyByGSTIN(gstin string) (*invoice.Company, error) {
	var company *invoice.Company
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(companyGSTINBucket)).Get([]byte(gstin))
		if id == nil {
			return fmt.Errorf("company with GSTIN %s: %w", gstin, apperr.ErrNotFound)
		}
		data := tx.Bucket([]byte(companiesBucket)).Get(id)
		if data == nil {
			return fmt.Errorf("company %s: %w", id, apperr.ErrNotFound)
		}
		return json.Unmarshal(data, &company)
	})
	if err != nil {
		return nil, err
	}
	return company, nil
}

// ListCompanies returns all companies ordered by name
func (b *BoltDB) ListCompanies() ([]*invoice.Company, error) {
	companies := make([]*invoice.Company, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(companiesBucket)).ForEach(func(k, v []byte) error {
			var c invoice.Company
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("unmarshaling company: %w", err)
			}
			companies = append(companies, &c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(companies, func(i, j int) bool { return companies[i].Name < companies[j].Name })
	return companies, nil
}

func putItem(tx *bbolt.Tx, item *invoice.Item) error {
	index := tx.Bucket([]byte(itemHSNBucket))
	if existing := index.Get([]byte(item.HSNSAC)); existing != nil && string(existing) != item.ID {
		return fmt.Errorf("item with HSN/SAC %s: %w", item.HSNSAC, ErrDuplicate)
	}
	if err := putJSON(tx.Bucket([]byte(itemsBucket)), item.ID, item); err != nil {
		return err
	}
	return index.Put([]byte(item.HSNSAC), []byte(item.ID))
}

// SaveItem stores an item. HSN/SAC codes are unique.
func (b *BoltDB) SaveItem(item *invoice.Item) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putItem(tx, item)
	})
}

// FindItemByHSN looks an item up by its HSN/SAC code
func (b *BoltDB) FindItemByHSN(code string) (*invoice.Item, error) {
	var item *invoice.Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(itemHSNBucket)).Get([]byte(code))
		if id == nil {
			return fmt.Errorf("item with HSN/SAC %s: %w", code, apperr.ErrNotFound)
		}
		data := tx.Bucket([]byte(itemsBucket)).Get(id)
		if data == nil {
			return fmt.Errorf("item %s: %w", id, apperr.ErrNotFound)
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns all items ordered by name
func (b *BoltDB) ListItems() ([]*invoice.Item, error) {
	items := make([]*invoice.Item, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).ForEach(func(k, v []byte) error {
			var item invoice.Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func lineKey(invoiceID string, i int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", invoiceID, i))
}

// CreateInvoice stores the header and every line item in one transaction.
// Any failure rolls the whole write back and is reported wrapping
// apperr.ErrPersistence.
func (b *BoltDB) CreateInvoice(ctx context.Context, rec *invoice.Record) error {
	for i := range rec.LineItems {
		rec.LineItems[i].InvoiceID = rec.ID
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		numbers := tx.Bucket([]byte(invoiceNumbersBucket))
		if numbers.Get([]byte(rec.InvoiceNumber)) != nil {
			return fmt.Errorf("invoice number %s: %w", rec.InvoiceNumber, ErrDuplicate)
		}

		companies := tx.Bucket([]byte(companiesBucket))
		for _, id := range []string{rec.VendorID, rec.CustomerID} {
			if companies.Get([]byte(id)) == nil {
				return fmt.Errorf("company %s: %w", id, apperr.ErrNotFound)
			}
		}

		header := *rec
		header.LineItems = nil
		if err := putJSON(tx.Bucket([]byte(invoicesBucket)), rec.ID, header); err != nil {
			return err
		}
		if err := numbers.Put([]byte(rec.InvoiceNumber), []byte(rec.ID)); err != nil {
			return err
		}

		lines := tx.Bucket([]byte(invoiceLinesBucket))
		for i, line := range rec.LineItems {
			if strings.TrimSpace(line.Description) == "" {
				return fmt.Errorf("line item %d has no description", i)
			}
			data, err := json.Marshal(line)
			if err != nil {
				return fmt.Errorf("marshaling line item %d: %w", i, err)
			}
			if err := lines.Put(lineKey(rec.ID, i), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: creating invoice %s: %w", apperr.ErrPersistence, rec.InvoiceNumber, err)
	}
	return nil
}

func readLines(tx *bbolt.Tx, invoiceID string) ([]invoice.RecordLine, error) {
	lines := make([]invoice.RecordLine, 0)
	prefix := []byte(invoiceID + "/")
	c := tx.Bucket([]byte(invoiceLinesBucket)).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var line invoice.RecordLine
		if err := json.Unmarshal(v, &line); err != nil {
			return nil, fmt.Errorf("unmarshaling line item: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// GetInvoice retrieves an invoice and its line items
func (b *BoltDB) GetInvoice(ctx context.Context, id string) (*invoice.Record, error) {
	var rec *invoice.Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(invoicesBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("invoice %s: %w", id, apperr.ErrNotFound)
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshaling invoice: %w", err)
		}
		lines, err := readLines(tx, id)
		if err != nil {
			return err
		}
		rec.LineItems = lines
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AllInvoices returns every invoice with its line items, newest invoice
// date first.
func (b *BoltDB) AllInvoices(ctx context.Context) ([]*invoice.Record, error) {
	records := make([]*invoice.Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(invoicesBucket)).ForEach(func(k, v []byte) error {
			var rec invoice.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			lines, err := readLines(tx, rec.ID)
			if err != nil {
				return err
			}
			rec.LineItems = lines
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByInvoiceDate(records)
	return records, nil
}

// ListInvoices returns one page of invoices, newest invoice date first,
// and the total count. Pages start at 1.
func (b *BoltDB) ListInvoices(ctx context.Context, page, perPage int) ([]*invoice.Record, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}

	all, err := b.AllInvoices(ctx)
	if err != nil {
		return nil, 0, err
	}

	start := (page - 1) * perPage
	if start >= len(all) {
		return []*invoice.Record{}, len(all), nil
	}
	end := min(start+perPage, len(all))
	return all[start:end], len(all), nil
}

// sortByInvoiceDate orders by ISO invoice date descending, then by creation
// time descending.
func sortByInvoiceDate(records []*invoice.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].InvoiceDate != records[j].InvoiceDate {
			return records[i].InvoiceDate > records[j].InvoiceDate
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
