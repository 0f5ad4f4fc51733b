package pipeline

import (
	"context"
	"fmt"
)

const BatchMessage = "Processing complete"

// BatchResult is returned to the storage trigger.
type BatchResult struct {
	Message string   `json:"message" yaml:"message"`
	Results []string `json:"results" yaml:"results"`
}

// HandleBatch processes keys in order. A failing key is reported in its result line
// and never stops the others.
func (p *Processor) HandleBatch(ctx context.Context, keys []string) BatchResult {
	res := BatchResult{Message: BatchMessage, Results: make([]string, 0, len(keys))}
	for _, key := range keys {
		p.cfg.Logger.Info("processing new image", "key", key)
		out, err := p.Process(ctx, key)
		if err != nil {
			p.cfg.Logger.Error("processing failed", "key", key, "err", err)
			res.Results = append(res.Results, fmt.Sprintf("Error processing %s: %v", key, err))
			continue
		}
		res.Results = append(res.Results, fmt.Sprintf("Processed: %s → %s", key, out.OutputKey))
	}
	return res
}
