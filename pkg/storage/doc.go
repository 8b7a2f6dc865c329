// Package storage provides the infrastructure clients shared by the server
// and the archiver: a Redis client for the feature flag cache and an S3
// client for audit archives.
//
// Relational storage lives in the postgres subpackage, which manages the
// primary and read replica pools and applies the schema:
//
//	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
//		PrimaryURL:  cfg.Database.URL,
//		ReplicaURLs: cfg.Database.ReplicaURLs,
//	}, logger)
//	if err := postgres.Migrate(ctx, cm.Primary(), logger); err != nil {
//		return err
//	}
//
// Writes (audit appends, flag updates) go to cm.Primary(). Read stores take
// cm.Replica itself so each query picks the next healthy replica:
//
//	users := auth.NewStoreFunc(cm.Replica)
package storage
