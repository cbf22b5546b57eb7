package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
)

const cobrancasTable = "cobrancas"

var schemaStatements = map[string][]string{
	dialect.Postgres: {
		`CREATE TABLE IF NOT EXISTS cobrancas (
	id BIGSERIAL PRIMARY KEY,
	mercadopago_id VARCHAR(100) UNIQUE,
	external_reference VARCHAR(100) NOT NULL UNIQUE,
	cliente_nome VARCHAR(200) NOT NULL,
	cliente_email VARCHAR(200) NOT NULL,
	cliente_telefone VARCHAR(50),
	cliente_documento VARCHAR(50),
	titulo VARCHAR(200) NOT NULL,
	descricao TEXT,
	valor NUMERIC(12,2) NOT NULL,
	status VARCHAR(50) NOT NULL DEFAULT 'pending',
	data_criacao TIMESTAMPTZ NOT NULL,
	data_atualizacao TIMESTAMPTZ NOT NULL,
	data_vencimento TIMESTAMPTZ,
	data_pagamento TIMESTAMPTZ,
	payment_url TEXT,
	dados_mercadopago TEXT
)`,
		`CREATE INDEX IF NOT EXISTS cobrancas_data_atualizacao_idx ON cobrancas (data_atualizacao)`,
	},
	dialect.SQLite: {
		`CREATE TABLE IF NOT EXISTS cobrancas (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mercadopago_id VARCHAR(100) UNIQUE,
	external_reference VARCHAR(100) NOT NULL UNIQUE,
	cliente_nome VARCHAR(200) NOT NULL,
	cliente_email VARCHAR(200) NOT NULL,
	cliente_telefone VARCHAR(50),
	cliente_documento VARCHAR(50),
	titulo VARCHAR(200) NOT NULL,
	descricao TEXT,
	valor NUMERIC(12,2) NOT NULL,
	status VARCHAR(50) NOT NULL DEFAULT 'pending',
	data_criacao DATETIME NOT NULL,
	data_atualizacao DATETIME NOT NULL,
	data_vencimento DATETIME,
	data_pagamento DATETIME,
	payment_url TEXT,
	dados_mercadopago TEXT
)`,
		`CREATE INDEX IF NOT EXISTS cobrancas_data_atualizacao_idx ON cobrancas (data_atualizacao)`,
	},
}

// Migrate creates the cobrancas table and its indexes if they do not exist.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	stmts, ok := schemaStatements[db.Dialect()]
	if !ok {
		return fmt.Errorf("no schema for dialect %q", db.Dialect())
	}
	for _, stmt := range stmts {
		if err := db.Driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			logger.Error("schema migration failed", "dialect", db.Dialect(), "error", err)
			return err
		}
	}
	logger.Info("schema up to date", "dialect", db.Dialect(), "table", cobrancasTable)
	return nil
}
