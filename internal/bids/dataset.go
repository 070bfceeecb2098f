package bids

// datasetDescRequiredFields lists what a dataset_description.json must
// carry.
var datasetDescRequiredFields = []string{"Name", "BIDSVersion"}

// DefaultDatasetDescription returns a fresh default dataset description.
// Each call returns an independent mapping so no two incrementals can share
// mutable state through the default.
func DefaultDatasetDescription() map[string]any {
	return map[string]any{
		"Name":        "BIDS-Incremental Dataset",
		"BIDSVersion": "1.4.1",
		"Authors": []any{
			"The bidsforge Authors",
			"The Dataset Authors",
		},
	}
}

// missingDatasetMetadata returns the required description fields absent or
// nil in md.
func missingDatasetMetadata(md map[string]any) []string {
	var missing []string
	for _, field := range datasetDescRequiredFields {
		if v, ok := md[field]; !ok || v == nil {
			missing = append(missing, field)
		}
	}
	return missing
}
