package extract

// Schema is the ordered set of field names an extraction is expected to fill.
// It is fixed when built and never mutated afterwards.
type Schema struct {
	names []string
	index map[string]struct{}
}

// NewSchema builds a schema from names. Duplicates keep their first position.
func NewSchema(names ...string) Schema {
	s := Schema{
		names: make([]string, 0, len(names)),
		index: make(map[string]struct{}, len(names)),
	}
	for _, n := range names {
		if _, ok := s.index[n]; ok {
			continue
		}
		s.index[n] = struct{}{}
		s.names = append(s.names, n)
	}
	return s
}

// Contains reports whether name is a schema field. The match is exact and case-sensitive.
func (s Schema) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Names returns a copy of the field names in schema order.
func (s Schema) Names() []string {
	return append([]string(nil), s.names...)
}

func (s Schema) Len() int { return len(s.names) }

// InvoiceFields are the fields requested from hospital and pharmacy invoices.
var InvoiceFields = []string{
	"UHID", "IP No (Inpatient Number)", "Date of Admission (DOA)", "Date of Discharge (DOD)", "Treating Doctor",
	"Consultant", "Admission No", "Bed No", "Billing Class", "Room Type", "Pan No", "GST No", "Bill Date", "From Date",
	"To Date", "Total Bill Amount", "Deposit Amount", "Net Bill Amount", "Total Payable Amount", "Outstanding Amount",
	"Bill No", "Invoice No", "GSTIN", "Patient Name", "Hospital Name", "Diagnostic Name", "Age", "Gender", "Diagnosis",
	"Date", "Doctor Name", "Referring Doctor", "Required Amount", "City", "DOB", "Patient Number", "Govt Allotted Number",
	"Address", "Phone Number", "Father's Name",
}

// DefaultInvoiceSchema returns the invoice schema used by the storage-triggered extractor.
func DefaultInvoiceSchema() Schema {
	return NewSchema(InvoiceFields...)
}
