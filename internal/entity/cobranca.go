package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/cobrancas/constants"
)

// Cobranca represents a billing record for data transfer between layers.
type Cobranca struct {
	ID                int64                    `json:"id"`
	ProviderPaymentID *string                  `json:"mercadopago_id,omitempty"`
	ExternalReference string                   `json:"external_reference"`
	CustomerName      string                   `json:"cliente_nome"`
	CustomerEmail     string                   `json:"cliente_email"`
	CustomerPhone     *string                  `json:"cliente_telefone,omitempty"`
	CustomerDocument  *string                  `json:"cliente_documento,omitempty"`
	Title             string                   `json:"titulo"`
	Description       *string                  `json:"descricao,omitempty"`
	Amount            decimal.Decimal          `json:"valor"`
	Status            constants.CobrancaStatus `json:"status"`
	CreatedAt         time.Time                `json:"data_criacao"`
	UpdatedAt         time.Time                `json:"data_atualizacao"`
	DueAt             *time.Time               `json:"data_vencimento,omitempty"`
	PaidAt            *time.Time               `json:"data_pagamento,omitempty"`
	PaymentURL        *string                  `json:"payment_url,omitempty"`
	// ProviderData is the raw JSON text returned by the payment provider.
	ProviderData *string `json:"-"`
}

// ProviderDataMap parses ProviderData on demand. A nil map means no data.
func (c *Cobranca) ProviderDataMap() (map[string]any, error) {
	if c.ProviderData == nil || *c.ProviderData == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*c.ProviderData), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetProviderData serializes v into ProviderData; a nil or empty value clears it.
func (c *Cobranca) SetProviderData(v any) error {
	if v == nil {
		c.ProviderData = nil
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if s := string(b); s != "null" && s != "{}" {
		c.ProviderData = &s
		return nil
	}
	c.ProviderData = nil
	return nil
}
