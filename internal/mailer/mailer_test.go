package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultRenderer(t *testing.T) {
	subject, body := defaultRenderer("course_enrollment_welcome", map[string]interface{}{
		"customer_name": "Ariel Mendez",
		"course_name":   "Rescue Diver",
	})

	assert.Equal(t, "Course enrollment welcome", subject)
	// Keys are emitted in sorted order so the body is deterministic.
	assert.Equal(t, "course_name: Rescue Diver\ncustomer_name: Ariel Mendez\n", body)
}

func TestDefaultRendererEmptyData(t *testing.T) {
	subject, body := defaultRenderer("student_ready", nil)

	assert.Equal(t, "Student ready", subject)
	assert.Empty(t, body)
}

func TestSendTemplateRejectsEmptyRecipient(t *testing.T) {
	m := New(Config{Host: "localhost", Port: 2525}, nil, zap.NewNop())

	err := m.SendTemplate(context.Background(), "", "course_enrollment_welcome", nil)

	require.Error(t, err)
}

func TestSendTemplateRequiresStartedQueue(t *testing.T) {
	m := New(Config{Host: "localhost", Port: 2525}, nil, zap.NewNop())

	err := m.SendTemplate(context.Background(), "ariel@example.com", "course_enrollment_welcome", nil)

	require.Error(t, err)
}
