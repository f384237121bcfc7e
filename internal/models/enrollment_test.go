package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePaymentStatus(t *testing.T) {
	assert.Equal(t, PaymentStatusPaid, DerivePaymentStatus(350, 350))
	assert.Equal(t, PaymentStatusPaid, DerivePaymentStatus(400, 350))
	assert.Equal(t, PaymentStatusPartial, DerivePaymentStatus(100, 350))
	assert.Equal(t, PaymentStatusPending, DerivePaymentStatus(0, 350))
	// Free courses count as paid from the first cent, including zero.
	assert.Equal(t, PaymentStatusPaid, DerivePaymentStatus(0, 0))
}

func TestEnrollmentStatusActive(t *testing.T) {
	assert.True(t, EnrollmentStatusEnrolled.Active())
	assert.True(t, EnrollmentStatusInProgress.Active())
	assert.False(t, EnrollmentStatusCompleted.Active())
	assert.False(t, EnrollmentStatusCertified.Active())
	assert.False(t, EnrollmentStatusCancelled.Active())
}
