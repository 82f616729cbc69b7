package equipment

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"diabetes-clinic-server/internal/apperrors"
	"diabetes-clinic-server/internal/logger"
	"diabetes-clinic-server/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func setupGormManager(t *testing.T) (*Manager, *GormRepository, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	repo := NewGormRepository(openTestDB(t))
	return NewManager(repo, logger.NewNop(), WithClock(clock.Now)), repo, clock
}

func TestGormRepository_AddAndReadBack(t *testing.T) {
	m, repo, _ := setupGormManager(t)
	ctx := context.Background()

	added, err := m.Add(ctx, testPatient, models.DevicePump, pumpInput("PUMP-1"), staff)
	require.NoError(t, err)

	stored, err := repo.Current(ctx, testPatient, models.DevicePump)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, added.ID, stored.ID)
	assert.Equal(t, "2028-01-15", stored.WarrantyEndDate.String())
	assert.Equal(t, "2024-01-20", stored.StartDate.String())
	require.NotNil(t, stored.Pump)
	assert.Equal(t, "MiniMed 780G", stored.Pump.Model)

	empty, err := repo.Current(ctx, testPatient, models.DeviceTransmitter)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestGormRepository_UniqueSlot(t *testing.T) {
	_, repo, _ := setupGormManager(t)
	ctx := context.Background()

	first := &models.Equipment{PatientID: testPatient, DeviceType: models.DeviceTransmitter}
	first.SerialNumber = "TX-1"
	require.NoError(t, repo.Insert(ctx, first))

	second := &models.Equipment{PatientID: testPatient, DeviceType: models.DeviceTransmitter}
	second.SerialNumber = "TX-2"
	err := repo.Insert(ctx, second)
	assert.True(t, apperrors.IsConflict(err), "got %v", err)
}

func TestGormRepository_UpdateMissing(t *testing.T) {
	_, repo, _ := setupGormManager(t)

	ghost := &models.Equipment{BaseModel: models.BaseModel{ID: "missing"}, PatientID: testPatient, DeviceType: models.DevicePump}
	err := repo.Update(context.Background(), ghost)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGormRepository_UpdatePersists(t *testing.T) {
	m, repo, _ := setupGormManager(t)
	ctx := context.Background()

	_, err := m.Add(ctx, testPatient, models.DevicePump, pumpInput("PUMP-1"), staff)
	require.NoError(t, err)

	manufacturer := "Tandem"
	_, err = m.Update(ctx, testPatient, models.DevicePump, EquipmentPatch{Manufacturer: &manufacturer}, staff)
	require.NoError(t, err)

	stored, err := repo.Current(ctx, testPatient, models.DevicePump)
	require.NoError(t, err)
	assert.Equal(t, "Tandem", stored.Pump.Manufacturer)
	assert.Equal(t, "Nurse Joy", stored.LastUpdatedBy)
	assert.NotNil(t, stored.LastUpdatedDate)
}

func TestGormRepository_ReplaceAndHistory(t *testing.T) {
	m, repo, clock := setupGormManager(t)
	ctx := context.Background()

	_, err := m.Add(ctx, testPatient, models.DevicePump, pumpInput("PUMP-0"), staff)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		clock.Advance(24 * time.Hour)
		_, err := m.Replace(ctx, testPatient, models.DevicePump, pumpInput(fmt.Sprintf("PUMP-%d", i)), fmt.Sprintf("reason %d", i), staff)
		require.NoError(t, err)
	}

	current, err := repo.Current(ctx, testPatient, models.DevicePump)
	require.NoError(t, err)
	assert.Equal(t, "PUMP-3", current.SerialNumber)

	history, err := m.History(ctx, testPatient)
	require.NoError(t, err)
	entries := slices.Collect(history)
	require.Len(t, entries, 3)
	assert.Equal(t, "PUMP-2", entries[0].SerialNumber)
	assert.Equal(t, "PUMP-1", entries[1].SerialNumber)
	assert.Equal(t, "PUMP-0", entries[2].SerialNumber)
	assert.Equal(t, "2026-03-13", entries[0].EndDate.String())
}

func TestGormRepository_ReplaceRollsBack(t *testing.T) {
	m, repo, clock := setupGormManager(t)
	ctx := context.Background()

	_, err := m.Add(ctx, testPatient, models.DevicePump, pumpInput("PUMP-0"), staff)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	current, err := m.Replace(ctx, testPatient, models.DevicePump, pumpInput("PUMP-1"), "upgrade", staff)
	require.NoError(t, err)

	entries, err := repo.History(ctx, testPatient)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// the archive row reuses an existing primary key, so the insert fails after
	// the active unit was already deleted inside the transaction
	archived := &models.EquipmentHistoryEntry{
		BaseModel:   models.BaseModel{ID: entries[0].ID},
		PatientID:   testPatient,
		EquipmentID: current.ID,
		DeviceType:  models.DevicePump,
		Reason:      "duplicate",
	}
	next := &models.Equipment{PatientID: testPatient, DeviceType: models.DevicePump}
	next.SerialNumber = "PUMP-2"

	require.Error(t, repo.Replace(ctx, archived, next))

	stored, err := repo.Current(ctx, testPatient, models.DevicePump)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, current.ID, stored.ID)

	entries, err = repo.History(ctx, testPatient)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGormRepository_ReplaceWrongUnit(t *testing.T) {
	m, repo, _ := setupGormManager(t)
	ctx := context.Background()

	original, err := m.Add(ctx, testPatient, models.DevicePump, pumpInput("PUMP-0"), staff)
	require.NoError(t, err)

	archived := &models.EquipmentHistoryEntry{PatientID: testPatient, EquipmentID: "not-the-active-unit", DeviceType: models.DevicePump, Reason: "x"}
	next := &models.Equipment{PatientID: testPatient, DeviceType: models.DevicePump}
	err = repo.Replace(ctx, archived, next)
	assert.True(t, apperrors.IsNotFound(err))

	stored, err := repo.Current(ctx, testPatient, models.DevicePump)
	require.NoError(t, err)
	assert.Equal(t, original.ID, stored.ID)
}
