package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InvoiceExtractionPrompt is sent with every image by the storage-triggered extractor.
const InvoiceExtractionPrompt = `
You are an expert in extracting data from invoices.
Please extract the following features from the input and return them in JSON format:
%s.

If a field is not present, set it to null.
Additionally, extract any other fields found in the invoice that are not part of the predefined list.
`

// InvoiceQuestionPrompt frames free-form questions about an uploaded invoice.
const InvoiceQuestionPrompt = `
You are an expert in understanding invoices.
You will receive input images as invoices &
you will have to answer questions based on the input image
`

// ExtractionPrompt renders the extraction instruction for the given field names.
func ExtractionPrompt(fields []string) string {
	return fmt.Sprintf(InvoiceExtractionPrompt, strings.Join(fields, ", "))
}

// LoadPrompt returns the contents of <dir>/<name>.txt when it exists and is
// non-empty, otherwise fallback. An empty dir always yields fallback.
func LoadPrompt(dir, name, fallback string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return fallback, nil
	}
	p := filepath.Join(dir, name+".txt")
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return fallback, nil
		}
		return "", fmt.Errorf("read prompt %s: %w", p, err)
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s, nil
	}
	return fallback, nil
}
