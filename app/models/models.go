package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Course{},
		&Lecture{},
		&Payment{},
		&Enrollment{},
		&LectureCompletion{},
		&Review{},
		&PaymentWebhookEvent{},
	}
}
