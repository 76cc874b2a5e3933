package model

// ConfidenceScore aggregates how well one answer is supported by its
// sources. Each component is on a 0-100 scale; Overall is a fixed
// weighted combination of the six components.
type ConfidenceScore struct {
	SourceQuality     float64 `json:"source_quality"`
	SourceQuantity    float64 `json:"source_quantity"`
	SemanticAlignment float64 `json:"semantic_alignment"`
	Authority         float64 `json:"authority"`
	Recency           float64 `json:"recency"`
	Consensus         float64 `json:"consensus"`
	Overall           float64 `json:"overall"`
	Reasoning         string  `json:"reasoning,omitempty"`
}
