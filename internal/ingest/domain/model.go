package domain

import (
	"io"

	"github.com/restorehq/restore/internal/partition"
	"github.com/restorehq/restore/internal/tabular"
)

type UploadStatus string

const (
	UploadCompleted UploadStatus = "completed"
	UploadPartial   UploadStatus = "partial"
)

type PartitionStatus string

const (
	PartitionCompleted PartitionStatus = "completed"
	PartitionFailed    PartitionStatus = "failed"
)

// Step names the stage of a partition's pipeline that failed.
type Step string

const (
	StepEncode        Step = "encode"
	StepStore         Step = "store"
	StepTrain         Step = "train"
	StepPredict       Step = "predict"
	StepInsights      Step = "insights"
	StepStoreInsights Step = "store_insights"
)

type UploadRequest struct {
	CustomerID  string
	Kind        partition.Kind
	FileName    string
	ContentType string
	Body        io.Reader
	// RequestID scopes the debit; a retried request with the same id is not charged again.
	RequestID string
	Username  string
}

type PartitionOutcome struct {
	Name        string          `json:"name"`
	StoragePath string          `json:"storage_path"`
	Rows        int             `json:"rows"`
	Status      PartitionStatus `json:"status"`
	Stored      bool            `json:"stored"`
	Trained     bool            `json:"trained"`
	Predicted   bool            `json:"predicted"`
	Error       string          `json:"error,omitempty"`
	FailedStep  Step            `json:"failed_step,omitempty"`
}

type UploadResult struct {
	UploadID       string             `json:"upload_id"`
	CustomerID     string             `json:"customer_id"`
	Kind           partition.Kind     `json:"kind"`
	Status         UploadStatus       `json:"status"`
	Rows           int                `json:"rows"`
	CreditsCharged int64              `json:"credits_charged"`
	Balance        int64              `json:"balance"`
	Replayed       bool               `json:"replayed,omitempty"`
	Partitions     []PartitionOutcome `json:"partitions"`
	Warnings       []tabular.Warning  `json:"warnings,omitempty"`
}
