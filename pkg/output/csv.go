package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	apperr "churngen/pkg/errors"
	"churngen/pkg/models"
)

const (
	CustomersFile = "customers.csv"
	OrdersFile    = "orders.csv"
)

var (
	customerHeader = []string{"CUSTOMER_ID", "SEGMENT", "REGISTRATION_DATE", "REGION"}
	orderHeader    = []string{"ORDER_ID", "CUSTOMER_ID", "ORDER_DATE", "ORDER_AMOUNT", "STATUS"}
)

// Paths of the files written by WriteCSV.
type Paths struct {
	Customers string
	Orders    string
}

// WriteCSV writes both tables under dir, creating it if needed. Both tables
// are rendered to temporary files first and only renamed into place once
// both succeeded. If the orders rename fails the previous customers file is
// restored, so a failed run leaves any previous pair untouched.
func WriteCSV(ds models.Dataset, dir string) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, apperr.Wrap(err, apperr.ErrIO, "create output dir")
	}

	custTmp, err := writeTemp(dir, CustomersFile, func(w io.Writer) error { return WriteCustomers(w, ds.Customers) })
	if err != nil {
		return Paths{}, err
	}
	ordTmp, err := writeTemp(dir, OrdersFile, func(w io.Writer) error { return WriteOrders(w, ds.Orders) })
	if err != nil {
		os.Remove(custTmp)
		return Paths{}, err
	}

	paths := Paths{
		Customers: filepath.Join(dir, CustomersFile),
		Orders:    filepath.Join(dir, OrdersFile),
	}
	backup, err := keepPrevious(paths.Customers)
	if err != nil {
		os.Remove(custTmp)
		os.Remove(ordTmp)
		return Paths{}, err
	}
	if err := os.Rename(custTmp, paths.Customers); err != nil {
		os.Remove(custTmp)
		os.Remove(ordTmp)
		discard(backup)
		return Paths{}, apperr.Wrap(err, apperr.ErrIO, "replace "+CustomersFile)
	}
	if err := os.Rename(ordTmp, paths.Orders); err != nil {
		os.Remove(ordTmp)
		restore(backup, paths.Customers)
		return Paths{}, apperr.Wrap(err, apperr.ErrIO, "replace "+OrdersFile)
	}
	discard(backup)
	return paths, nil
}

// keepPrevious hard-links an existing file next to itself so it can be put
// back if the second rename fails. It returns "" when there is nothing to keep.
func keepPrevious(path string) (string, error) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	backup := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".prev")
	os.Remove(backup)
	if err := os.Link(path, backup); err != nil {
		return "", apperr.Wrap(err, apperr.ErrIO, "keep previous "+filepath.Base(path))
	}
	return backup, nil
}

// restore puts the previous file back, or removes the new one when there was
// no previous file.
func restore(backup, path string) {
	if backup == "" {
		os.Remove(path)
		return
	}
	os.Rename(backup, path)
}

func discard(backup string) {
	if backup != "" {
		os.Remove(backup)
	}
}

func writeTemp(dir, name string, render func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", apperr.Wrap(err, apperr.ErrIO, "create "+name)
	}
	if err := render(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", apperr.Wrap(err, apperr.ErrIO, "write "+name)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", apperr.Wrap(err, apperr.ErrIO, "close "+name)
	}
	// CreateTemp uses 0600; match a regular file.
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		os.Remove(f.Name())
		return "", apperr.Wrap(err, apperr.ErrIO, "chmod "+name)
	}
	return f.Name(), nil
}

// WriteCustomers renders the customers table with its header.
func WriteCustomers(w io.Writer, customers []models.Customer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(customerHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, c := range customers {
		if err := cw.Write(customerRow(c)); err != nil {
			return fmt.Errorf("write %s: %w", c.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOrders renders the orders table with its header.
func WriteOrders(w io.Writer, orders []models.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orderHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, o := range orders {
		if err := cw.Write(orderRow(o)); err != nil {
			return fmt.Errorf("write %s: %w", o.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func customerRow(c models.Customer) []string {
	return []string{
		c.ID,
		c.Segment.String(),
		c.RegistrationDate.Format(models.DateLayout),
		c.Region.String(),
	}
}

func orderRow(o models.Order) []string {
	return []string{
		o.ID,
		o.CustomerID,
		o.OrderDate.Format(models.DateLayout),
		formatAmount(o.Amount),
		o.Status.String(),
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
