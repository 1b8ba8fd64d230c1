package types

type RunMode string

const (
	// ModeLocal runs everything in process against the configured store
	ModeLocal RunMode = "local"
	// ModeScenario replays a scenario file and exits
	ModeScenario RunMode = "scenario"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// StoreType selects the repository backend
type StoreType string

const (
	StoreMemory   StoreType = "memory"
	StorePostgres StoreType = "postgres"
)

// PubSubType defines the type of pubsub implementation
type PubSubType string

const (
	// MemoryPubSub uses in-memory implementation
	MemoryPubSub PubSubType = "memory"
	// KafkaPubSub uses Kafka implementation
	KafkaPubSub PubSubType = "kafka"
)

// DefaultSignalTopic is where billing signals are published unless configured otherwise
const DefaultSignalTopic = "billing.signals"
