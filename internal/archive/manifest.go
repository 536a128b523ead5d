package archive

import "tickvault/internal/domain"

// Manifest is the immutable metadata record published next to every
// uploaded archive. Schema version "1".
type Manifest struct {
	Version   string          `json:"version"`
	Source    ManifestSource  `json:"source"`
	Payload   ManifestPayload `json:"payload"`
	CreatedMS int64           `json:"created_at_ms"`
}

type ManifestSource struct {
	Exchange   string `json:"exchange"`
	Stream     string `json:"stream"`
	Symbol     string `json:"symbol"`
	InstanceID string `json:"instance_id"`
}

type ManifestPayload struct {
	S3Key             string `json:"s3_key"`
	RecordCount       int64  `json:"record_count"`
	BytesUncompressed int64  `json:"bytes_uncompressed"`
	BytesGzip         int64  `json:"bytes_gzip"`
	TimeMinMS         int64  `json:"time_min_ms"`
	TimeMaxMS         int64  `json:"time_max_ms"`
	IDFirst           int64  `json:"id_first"`
	IDLast            int64  `json:"id_last"`
	SHA256            string `json:"sha256"`
}

// nowMS is swapped out in tests to pin the creation timestamp.
var nowMS = NowMS

// BuildManifest stamps a manifest for one uploaded archive. The creation
// timestamp is assigned here, at build time, not at segment close.
func BuildManifest(src domain.Source, payload ManifestPayload) Manifest {
	return Manifest{
		Version: "1",
		Source: ManifestSource{
			Exchange:   src.Exchange,
			Stream:     src.Stream,
			Symbol:     src.Symbol,
			InstanceID: src.InstanceID,
		},
		Payload:   payload,
		CreatedMS: nowMS(),
	}
}
