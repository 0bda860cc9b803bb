package models_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/codeclash-dev/codeclash-api/internal/models"
)

func TestValidDifficulty(t *testing.T) {
	require.True(t, models.ValidDifficulty("easy"))
	require.True(t, models.ValidDifficulty("MEDIUM"))
	require.True(t, models.ValidDifficulty(" hard "))
	require.False(t, models.ValidDifficulty("extreme"))
	require.False(t, models.ValidDifficulty(""))
}

func TestTaskBeforeSaveFoldsTitle(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Task{}))

	task := models.Task{Title: "  Pixel Perfect Login  ", Description: "replicate the login page"}
	require.NoError(t, db.Create(&task).Error)

	require.Equal(t, "Pixel Perfect Login", task.Title)
	require.Equal(t, "pixel perfect login", task.TitleLower)
}

func TestTaskUniqueTitleIgnoresCase(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Task{}))

	first := models.Task{Title: "Navbar Clone", Description: "d"}
	require.NoError(t, db.Create(&first).Error)

	second := models.Task{Title: "NAVBAR CLONE", Description: "d"}
	err = db.Create(&second).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestTaskDocumentAccessors(t *testing.T) {
	task := models.Task{
		Dependencies: datatypes.JSON(`["react","tailwindcss"]`),
		Assets:       datatypes.JSON(`{"logo":"https://cdn.test/logo.png","font_size":14}`),
	}

	deps := task.DependenciesSlice()
	require.Equal(t, []string{"react", "tailwindcss"}, deps)

	assets := task.AssetsMap()
	require.Equal(t, "https://cdn.test/logo.png", assets["logo"])
	require.EqualValues(t, 14, assets["font_size"])

	empty := models.Task{}
	require.Empty(t, empty.DependenciesSlice())
	require.Empty(t, empty.AssetsMap())
}
