package config

const (
	// TopicIngestEmbed is the NSQ topic carrying chunks waiting to be embedded
	// and indexed.
	TopicIngestEmbed = "ingest.embed"

	// TopicIngestDocument is the NSQ topic for re-ingesting a single archive
	// file, used when a failed document is retried.
	TopicIngestDocument = "ingest.document"

	// ChannelEmbedder and ChannelDocument are the consumer channels.
	ChannelEmbedder = "embedder"
	ChannelDocument = "document"
)

// Topics lists every topic that is pre-created at startup.
var Topics = []string{TopicIngestEmbed, TopicIngestDocument}
