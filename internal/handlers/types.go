package handlers

import (
	"context"
	"time"
)

// PolicyInput is one sliding-window limit in an admission request.
type PolicyInput struct {
	Occurrence    int     `doc:"Maximum events per window"  example:"100" json:"occurrence"    minimum:"1"`
	PeriodSeconds float64 `doc:"Window length in seconds"   example:"60"  json:"periodSeconds" minimum:"0"`
}

// AdmitRequest asks for one unit of work to be admitted and accounted.
type AdmitRequest struct {
	Body struct {
		Subject      string        `doc:"Subject identity the quota applies to" example:"user-42"                    json:"subject"`
		Tags         []string      `doc:"Operation tags, order-insensitive"     example:"[\"crawl\",\"search\"]"     json:"tags,omitempty"`
		Policies     []PolicyInput `doc:"Policies that must all have capacity"  json:"policies"`
		Status       string        `doc:"Outcome to record"                     enum:"SUCCESS,FAILURE"               json:"status,omitempty"`
		ChargeAmount float64       `doc:"Amount to charge for this operation"   example:"1"                          json:"chargeAmount,omitempty"`
	}
}

// AdmitResponse reports the recorded usage entry.
type AdmitResponse struct {
	Body struct {
		RecordID     string    `doc:"Usage record id"          json:"recordId,omitempty"`
		UID          string    `doc:"Subject identity"         json:"uid"`
		Tags         []string  `doc:"Normalized tags"          json:"tags,omitempty"`
		Status       string    `doc:"Recorded outcome"         json:"status"`
		ChargeAmount float64   `doc:"Recorded charge"          json:"chargeAmount"`
		CreatedAt    time.Time `doc:"Record creation time"     json:"createdAt"`
	}
}

// UsageRequest lists recent usage for a subject.
type UsageRequest struct {
	UID   string `doc:"Subject identity" example:"user-42" path:"uid"`
	Limit int    `doc:"Maximum entries"  example:"50"      maximum:"1000" minimum:"1" query:"limit"`
}

// UsageEntry is one accounted operation in a usage listing.
type UsageEntry struct {
	RecordID     string    `json:"recordId"`
	Tags         []string  `json:"tags,omitempty"`
	Status       string    `json:"status"`
	ChargeAmount float64   `json:"chargeAmount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UsageResponse is the usage listing for one subject.
type UsageResponse struct {
	Body struct {
		UID     string       `json:"uid"`
		Total   int64        `doc:"Total recorded entries for the subject" json:"total"`
		Entries []UsageEntry `json:"entries"`
	}
}

type requestMetaKey struct{}

// RequestMeta holds HTTP request metadata handlers attribute usage to.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// ContextWithRequestMeta adds request metadata to context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}

	return RequestMeta{}
}
