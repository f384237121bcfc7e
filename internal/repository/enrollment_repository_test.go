package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilusdive/ops-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return sqlxDB, mock, func() { _ = sqlxDB.Close() }
}

func lockedScheduleRows(currentEnrollment, maxStudents int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "course_id", "max_students", "current_enrollment", "price"}).
		AddRow("sched-1", "course-1", maxStudents, currentEnrollment, 350.0)
}

func TestEnrollCommitsInsertAndIncrement(t *testing.T) {
	db, mock, closeFn := newRepoMock(t)
	defer closeFn()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cs\.id, cs\.course_id, cs\.max_students, cs\.current_enrollment, c\.price`).
		WithArgs("sched-1").
		WillReturnRows(lockedScheduleRows(3, 8))
	mock.ExpectQuery(`SELECT 1 FROM course_enrollments`).
		WithArgs("sched-1", "cust-1", models.EnrollmentStatusCancelled).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO course_enrollments`).
		WithArgs(sqlmock.AnyArg(), "sched-1", "cust-1", sqlmock.AnyArg(),
			models.EnrollmentStatusEnrolled, 200.0, models.PaymentStatusPartial,
			"Paid deposit.", "staff-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE course_schedules SET current_enrollment = current_enrollment \+ 1`).
		WithArgs("sched-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.Enroll(context.Background(), EnrollParams{
		ScheduleID: "sched-1",
		CustomerID: "cust-1",
		AmountPaid: 200,
		Notes:      "Paid deposit.",
		ActorID:    "staff-1",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollFullScheduleRollsBack(t *testing.T) {
	db, mock, closeFn := newRepoMock(t)
	defer closeFn()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cs\.id, cs\.course_id, cs\.max_students, cs\.current_enrollment, c\.price`).
		WithArgs("sched-1").
		WillReturnRows(lockedScheduleRows(8, 8))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), EnrollParams{ScheduleID: "sched-1", CustomerID: "cust-1"})

	require.ErrorIs(t, err, ErrScheduleFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollDuplicateRollsBack(t *testing.T) {
	db, mock, closeFn := newRepoMock(t)
	defer closeFn()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cs\.id, cs\.course_id, cs\.max_students, cs\.current_enrollment, c\.price`).
		WithArgs("sched-1").
		WillReturnRows(lockedScheduleRows(3, 8))
	mock.ExpectQuery(`SELECT 1 FROM course_enrollments`).
		WithArgs("sched-1", "cust-1", models.EnrollmentStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), EnrollParams{ScheduleID: "sched-1", CustomerID: "cust-1"})

	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollUnknownSchedule(t *testing.T) {
	db, mock, closeFn := newRepoMock(t)
	defer closeFn()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cs\.id, cs\.course_id, cs\.max_students, cs\.current_enrollment, c\.price`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), EnrollParams{ScheduleID: "missing", CustomerID: "cust-1"})

	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollRollsBackWhenIncrementFails(t *testing.T) {
	db, mock, closeFn := newRepoMock(t)
	defer closeFn()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cs\.id, cs\.course_id, cs\.max_students, cs\.current_enrollment, c\.price`).
		WithArgs("sched-1").
		WillReturnRows(lockedScheduleRows(3, 8))
	mock.ExpectQuery(`SELECT 1 FROM course_enrollments`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO course_enrollments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE course_schedules SET current_enrollment = current_enrollment \+ 1`).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), EnrollParams{ScheduleID: "sched-1", CustomerID: "cust-1"})

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferLocksSchedulesInSortedOrder(t *testing.T) {
	db, mock, closeFn := newRepoMock(t)
	defer closeFn()
	repo := NewEnrollmentRepository(db)

	// Old schedule id sorts after the new one; the lock queries must still
	// run in ascending id order.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, schedule_id, status FROM course_enrollments WHERE id = \$1 FOR UPDATE`).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "status"}).
			AddRow("enr-1", "sched-b", models.EnrollmentStatusEnrolled))
	mock.ExpectQuery(`SELECT cs\.id, cs\.course_id, cs\.max_students, cs\.current_enrollment, c\.price`).
		WithArgs("sched-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "max_students", "current_enrollment", "price"}).
			AddRow("sched-a", "course-1", 8, 2, 350.0))
	mock.ExpectQuery(`SELECT cs\.id, cs\.course_id, cs\.max_students, cs\.current_enrollment, c\.price`).
		WithArgs("sched-b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "max_students", "current_enrollment", "price"}).
			AddRow("sched-b", "course-1", 8, 5, 350.0))
	mock.ExpectExec(`UPDATE course_enrollments\s+SET schedule_id = \$2`).
		WithArgs("enr-1", "sched-a", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE course_schedules SET current_enrollment = current_enrollment - 1`).
		WithArgs("sched-b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE course_schedules SET current_enrollment = current_enrollment \+ 1`).
		WithArgs("sched-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Transfer(context.Background(), TransferParams{
		EnrollmentID:  "enr-1",
		NewScheduleID: "sched-a",
		Reason:        "schedule conflict",
		ActorID:       "staff-1",
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRejectsCourseMismatch(t *testing.T) {
	db, mock, closeFn := newRepoMock(t)
	defer closeFn()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, schedule_id, status FROM course_enrollments WHERE id = \$1 FOR UPDATE`).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "status"}).
			AddRow("enr-1", "sched-a", models.EnrollmentStatusEnrolled))
	mock.ExpectQuery(`SELECT cs\.id, cs\.course_id`).
		WithArgs("sched-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "max_students", "current_enrollment", "price"}).
			AddRow("sched-a", "course-1", 8, 2, 350.0))
	mock.ExpectQuery(`SELECT cs\.id, cs\.course_id`).
		WithArgs("sched-b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "max_students", "current_enrollment", "price"}).
			AddRow("sched-b", "course-2", 8, 2, 400.0))
	mock.ExpectRollback()

	err := repo.Transfer(context.Background(), TransferParams{
		EnrollmentID:  "enr-1",
		NewScheduleID: "sched-b",
	})

	require.ErrorIs(t, err, ErrCourseMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRejectsInactiveAndSameSchedule(t *testing.T) {
	t.Run("cancelled enrollment", func(t *testing.T) {
		db, mock, closeFn := newRepoMock(t)
		defer closeFn()
		repo := NewEnrollmentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, schedule_id, status FROM course_enrollments WHERE id = \$1 FOR UPDATE`).
			WithArgs("enr-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "status"}).
				AddRow("enr-1", "sched-a", models.EnrollmentStatusCancelled))
		mock.ExpectRollback()

		err := repo.Transfer(context.Background(), TransferParams{EnrollmentID: "enr-1", NewScheduleID: "sched-b"})
		require.ErrorIs(t, err, ErrEnrollmentInactive)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("same schedule", func(t *testing.T) {
		db, mock, closeFn := newRepoMock(t)
		defer closeFn()
		repo := NewEnrollmentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, schedule_id, status FROM course_enrollments WHERE id = \$1 FOR UPDATE`).
			WithArgs("enr-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "status"}).
				AddRow("enr-1", "sched-a", models.EnrollmentStatusEnrolled))
		mock.ExpectRollback()

		err := repo.Transfer(context.Background(), TransferParams{EnrollmentID: "enr-1", NewScheduleID: "sched-a"})
		require.ErrorIs(t, err, ErrSameSchedule)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCancelReleasesSeatOnlyWhenActive(t *testing.T) {
	t.Run("active enrollment releases its seat", func(t *testing.T) {
		db, mock, closeFn := newRepoMock(t)
		defer closeFn()
		repo := NewEnrollmentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, schedule_id, status FROM course_enrollments WHERE id = \$1 FOR UPDATE`).
			WithArgs("enr-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "status"}).
				AddRow("enr-1", "sched-1", models.EnrollmentStatusEnrolled))
		mock.ExpectExec(`UPDATE course_enrollments\s+SET status = \$2`).
			WithArgs("enr-1", models.EnrollmentStatusCancelled, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE course_schedules SET current_enrollment = current_enrollment - 1`).
			WithArgs("sched-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Cancel(context.Background(), "enr-1", "customer request", "staff-1")
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("completed enrollment keeps the counter", func(t *testing.T) {
		db, mock, closeFn := newRepoMock(t)
		defer closeFn()
		repo := NewEnrollmentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, schedule_id, status FROM course_enrollments WHERE id = \$1 FOR UPDATE`).
			WithArgs("enr-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "status"}).
				AddRow("enr-1", "sched-1", models.EnrollmentStatusCompleted))
		mock.ExpectExec(`UPDATE course_enrollments\s+SET status = \$2`).
			WithArgs("enr-1", models.EnrollmentStatusCancelled, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Cancel(context.Background(), "enr-1", "refund issued", "staff-1")
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already cancelled", func(t *testing.T) {
		db, mock, closeFn := newRepoMock(t)
		defer closeFn()
		repo := NewEnrollmentRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, schedule_id, status FROM course_enrollments WHERE id = \$1 FOR UPDATE`).
			WithArgs("enr-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "status"}).
				AddRow("enr-1", "sched-1", models.EnrollmentStatusCancelled))
		mock.ExpectRollback()

		err := repo.Cancel(context.Background(), "enr-1", "again", "staff-1")
		require.ErrorIs(t, err, ErrEnrollmentInactive)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateStatusNoRowsAffected(t *testing.T) {
	db, mock, closeFn := newRepoMock(t)
	defer closeFn()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`UPDATE course_enrollments\s+SET status = \$2`).
		WithArgs("missing", models.EnrollmentStatusCompleted, nil, nil, models.EnrollmentStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", StatusUpdate{Status: models.EnrollmentStatusCompleted})

	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusAppliesPartialFields(t *testing.T) {
	db, mock, closeFn := newRepoMock(t)
	defer closeFn()
	repo := NewEnrollmentRepository(db)
	grade := "pass"

	mock.ExpectExec(`UPDATE course_enrollments\s+SET status = \$2`).
		WithArgs("enr-1", models.EnrollmentStatusCompleted, &grade, nil, models.EnrollmentStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "enr-1", StatusUpdate{
		Status:     models.EnrollmentStatusCompleted,
		FinalGrade: &grade,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
