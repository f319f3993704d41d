package config

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var MongoClient *mongo.Client

type MongoPool struct {
	MaxPoolSize    uint64        `env:"MAX_POOL_SIZE" envDefault:"20"`
	OpTimeout      time.Duration `env:"OP_TIMEOUT" envDefault:"10s"`
	ForceTLS12     bool          `env:"FORCE_TLS12" envDefault:"false"`
	InsecureTLS    bool          `env:"INSECURE_TLS" envDefault:"false"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"30s"`
}

func mongoClientOptions(uri string, pool MongoPool) *options.ClientOptions {
	opts := options.Client().ApplyURI(uri).
		SetServerSelectionTimeout(20 * time.Second).
		SetConnectTimeout(15 * time.Second).
		SetMinPoolSize(1)
	if pool.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(pool.MaxPoolSize)
	}
	if pool.OpTimeout > 0 {
		opts.SetTimeout(pool.OpTimeout)
	}
	// some managed clusters only negotiate TLS 1.2 with recent Go toolchains
	if pool.ForceTLS12 {
		opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: pool.InsecureTLS,
			MinVersion:         tls.VersionTLS12,
			MaxVersion:         tls.VersionTLS12,
		})
	}
	return opts
}

// InitMongo connects the client that stores transcript submissions.
func InitMongo(uri string, pool MongoPool) error {
	if uri == "" {
		return errors.New("MONGO_URI is not set")
	}

	budget := pool.ConnectTimeout
	if budget <= 0 {
		budget = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	client, err := mongo.Connect(ctx, mongoClientOptions(uri, pool))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping mongo: %w", err)
	}

	MongoClient = client
	return nil
}
