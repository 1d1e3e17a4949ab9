package telemetry

// Tracer and span names used for pipeline instrumentation.
const (
	TracerName = "github.com/samirrijal/sarpipe"

	SpanRun      = "pipeline.run"
	SpanDiscover = "pipeline.discover"
	SpanDEM      = "pipeline.dem"
	SpanProduct  = "pipeline.product"
	SpanPublish  = "pipeline.publish"
	SpanStageOut = "pipeline.stage_out"
)

// Span attribute keys.
const (
	AttrRunID     = "sarpipe.run_id"
	AttrProduct   = "sarpipe.product"
	AttrState     = "sarpipe.state"
	AttrCatalog   = "sarpipe.catalog"
	AttrProducts  = "sarpipe.products"
	AttrAssetName = "sarpipe.asset_name"
)
