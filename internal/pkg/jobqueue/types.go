package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypePaymentReceipt         JobType = "send_payment_receipt"
	JobTypeEnrollmentConfirmation JobType = "send_enrollment_confirmation"
	JobTypeReconcileCourse        JobType = "reconcile_course"
	JobTypeReconcileAll           JobType = "reconcile_all"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// PaymentReceiptJobPayload names the settled payment to mail a receipt for.
type PaymentReceiptJobPayload struct {
	PaymentID uint `json:"payment_id"`
}

func (p PaymentReceiptJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"payment_id": p.PaymentID}
}

func PaymentReceiptJobPayloadFromMap(data map[string]interface{}) (*PaymentReceiptJobPayload, error) {
	var payload PaymentReceiptJobPayload
	return &payload, decodePayload(data, &payload)
}

// EnrollmentConfirmationJobPayload names the enrollment that just became active.
type EnrollmentConfirmationJobPayload struct {
	EnrollmentID uint `json:"enrollment_id"`
}

func (p EnrollmentConfirmationJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"enrollment_id": p.EnrollmentID}
}

func EnrollmentConfirmationJobPayloadFromMap(data map[string]interface{}) (*EnrollmentConfirmationJobPayload, error) {
	var payload EnrollmentConfirmationJobPayload
	return &payload, decodePayload(data, &payload)
}

// ReconcileCourseJobPayload names a course whose aggregates are recomputed.
type ReconcileCourseJobPayload struct {
	CourseID uint `json:"course_id"`
}

func (p ReconcileCourseJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"course_id": p.CourseID}
}

func ReconcileCourseJobPayloadFromMap(data map[string]interface{}) (*ReconcileCourseJobPayload, error) {
	var payload ReconcileCourseJobPayload
	return &payload, decodePayload(data, &payload)
}

// decodePayload round trips through JSON so numbers stored as float64 in
// Redis land in typed fields.
func decodePayload(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
