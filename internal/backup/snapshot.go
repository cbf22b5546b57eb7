// Package backup snapshots the cobranças store to JSON files, commits them to git
// and restores them with insert-only merge semantics.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/cobrancas/constants"
	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/entity"
)

const (
	snapshotVersion = "1.0"
	snapshotFormat  = "JSON"
	latestFilter    = "últimas 24 horas"
)

// Document is the on-disk snapshot layout.
type Document struct {
	ExportDate     Timestamp `json:"export_date"`
	Period         string    `json:"period,omitempty"`
	TotalCobrancas *int      `json:"total_cobrancas"`
	Cobrancas      []Record  `json:"cobrancas"`
	Metadata       Metadata  `json:"metadata"`
}

type Metadata struct {
	Version string `json:"version"`
	System  string `json:"system"`
	Format  string `json:"format"`
	Filter  string `json:"filter,omitempty"`
}

// Record is the snapshot representation of a cobrança. Field names follow the
// table columns so files stay readable next to the database.
type Record struct {
	ID                int64           `json:"id"`
	MercadoPagoID     *string         `json:"mercadopago_id"`
	ExternalReference string          `json:"external_reference"`
	ClienteNome       string          `json:"cliente_nome"`
	ClienteEmail      string          `json:"cliente_email"`
	ClienteTelefone   *string         `json:"cliente_telefone"`
	ClienteDocumento  *string         `json:"cliente_documento"`
	Titulo            string          `json:"titulo"`
	Descricao         *string         `json:"descricao"`
	Valor             *Amount         `json:"valor"`
	Status            string          `json:"status"`
	DataCriacao       *Timestamp      `json:"data_criacao"`
	DataAtualizacao   *Timestamp      `json:"data_atualizacao"`
	DataVencimento    *Timestamp      `json:"data_vencimento"`
	DataPagamento     *Timestamp      `json:"data_pagamento"`
	PaymentURL        *string         `json:"payment_url"`
	DadosMercadoPago  json.RawMessage `json:"dados_mercadopago"`
}

// Amount is a decimal that marshals as a bare JSON number.
type Amount struct {
	decimal.Decimal
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// Timestamp writes RFC 3339 UTC and reads both RFC 3339 and offset-less ISO 8601 (taken as UTC).
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func timestampPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	return &Timestamp{Time: t.UTC()}
}

func (t *Timestamp) timePtr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

// newDocument builds a fresh snapshot document over recs.
func newDocument(recs []*entity.Cobranca, exportedAt time.Time, system, period, filter string) (*Document, error) {
	records := make([]Record, 0, len(recs))
	for _, c := range recs {
		rec, err := recordFromEntity(c)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	total := len(records)
	return &Document{
		ExportDate:     Timestamp{Time: exportedAt.UTC()},
		Period:         period,
		TotalCobrancas: &total,
		Cobrancas:      records,
		Metadata: Metadata{
			Version: snapshotVersion,
			System:  system,
			Format:  snapshotFormat,
			Filter:  filter,
		},
	}, nil
}

func recordFromEntity(c *entity.Cobranca) (Record, error) {
	var data json.RawMessage
	if c.ProviderData != nil && *c.ProviderData != "" {
		if !json.Valid([]byte(*c.ProviderData)) {
			return Record{}, fmt.Errorf("cobranca %s: dados_mercadopago is not valid JSON", c.ExternalReference)
		}
		data = json.RawMessage(*c.ProviderData)
	}
	created := Timestamp{Time: c.CreatedAt.UTC()}
	updated := Timestamp{Time: c.UpdatedAt.UTC()}
	return Record{
		ID:                c.ID,
		MercadoPagoID:     c.ProviderPaymentID,
		ExternalReference: c.ExternalReference,
		ClienteNome:       c.CustomerName,
		ClienteEmail:      c.CustomerEmail,
		ClienteTelefone:   c.CustomerPhone,
		ClienteDocumento:  c.CustomerDocument,
		Titulo:            c.Title,
		Descricao:         c.Description,
		Valor:             &Amount{Decimal: c.Amount},
		Status:            string(c.Status),
		DataCriacao:       &created,
		DataAtualizacao:   &updated,
		DataVencimento:    timestampPtr(c.DueAt),
		DataPagamento:     timestampPtr(c.PaidAt),
		PaymentURL:        c.PaymentURL,
		DadosMercadoPago:  data,
	}, nil
}

// validate adds every missing or invalid field of the record at position index to v.
func (r *Record) validate(v *common.Validator, index int) {
	var amount *decimal.Decimal
	if r.Valor != nil {
		amount = &r.Valor.Decimal
	}
	field := func(name string) string { return fmt.Sprintf("cobrancas[%d].%s", index, name) }

	v.Field(field("external_reference"), r.ExternalReference, common.Required, common.MaxLength(100)).
		Field(field("cliente_nome"), r.ClienteNome, common.Required, common.MaxLength(200)).
		Field(field("cliente_email"), r.ClienteEmail, common.Required, common.MaxLength(200)).
		Field(field("titulo"), r.Titulo, common.Required, common.MaxLength(200)).
		Field(field("valor"), amount, common.Required).
		Field(field("status"), r.Status, common.OneOf(constants.StatusStrings()...))
}

// hasProviderData reports whether dados_mercadopago carries a non-empty value.
func (r *Record) hasProviderData() bool {
	trimmed := bytes.TrimSpace(r.DadosMercadoPago)
	if len(trimmed) == 0 {
		return false
	}
	switch string(trimmed) {
	case "null", "{}", "[]", `""`, "false", "0":
		return false
	}
	return true
}

// toEntity builds a new cobrança from a validated record. Store-assigned fields
// (id, created/updated timestamps) are left for the store.
func (r *Record) toEntity() *entity.Cobranca {
	status := constants.CobrancaStatus(r.Status)
	if status == "" {
		status = constants.StatusPending
	}
	c := &entity.Cobranca{
		ProviderPaymentID: r.MercadoPagoID,
		ExternalReference: r.ExternalReference,
		CustomerName:      r.ClienteNome,
		CustomerEmail:     r.ClienteEmail,
		CustomerPhone:     r.ClienteTelefone,
		CustomerDocument:  r.ClienteDocumento,
		Title:             r.Titulo,
		Description:       r.Descricao,
		Amount:            r.Valor.Decimal,
		Status:            status,
		DueAt:             r.DataVencimento.timePtr(),
		PaidAt:            r.DataPagamento.timePtr(),
		PaymentURL:        r.PaymentURL,
	}
	if r.hasProviderData() {
		raw := string(bytes.TrimSpace(r.DadosMercadoPago))
		c.ProviderData = &raw
	}
	return c
}
