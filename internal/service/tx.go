package service

import "context"

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Assets() AssetRepositoryInterface
	Chunks() ChunkRepositoryInterface
	Relationships() RelationshipRepositoryInterface
	Jobs() JobRepositoryInterface
	Reviews() ReviewRepositoryInterface
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
