package constants

type ContextKey string

const (
	TxKey     ContextKey = "tx"
	PoolKey   ContextKey = "pool"
	ActorKey  ContextKey = "actor"
	LoggerKey ContextKey = "logger"
)
