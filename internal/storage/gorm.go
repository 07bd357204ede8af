package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"arkmanager/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Profile struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	InstallDir string `gorm:"uniqueIndex"`
	ServerMap  string

	ServerIP   string
	PublicIP   string
	ServerPort int
	QueryPort  int
	MaxPlayers int

	RconEnabled   bool
	RconPort      int
	AdminPassword string

	AppID          string `gorm:"index:idx_branch"`
	BranchName     string `gorm:"index:idx_branch"`
	BranchPassword string
	ModIDs         string
	ExtraArgs      string

	GracePeriodMinutes    int
	CheckForOnlinePlayers bool
	SendShutdownMessages  bool
	ShutdownReason        string
	BackupOnShutdown      bool
	AutoUpdateEnabled     bool
	AutoBackupEnabled     bool

	LastStarted          time.Time
	LastInstalledVersion string
	ServerUpdated        bool
	CreatedAt            time.Time
}

type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	newLogger := gormlogger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		gormlogger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  gormlogger.Error,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&Profile{}, &Setting{})
	if err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(p *domain.Profile) *Profile {
	return &Profile{
		ID:                    p.ID,
		Name:                  p.Name,
		InstallDir:            p.InstallDir,
		ServerMap:             p.ServerMap,
		ServerIP:              p.ServerIP,
		PublicIP:              p.PublicIP,
		ServerPort:            p.ServerPort,
		QueryPort:             p.QueryPort,
		MaxPlayers:            p.MaxPlayers,
		RconEnabled:           p.RconEnabled,
		RconPort:              p.RconPort,
		AdminPassword:         p.AdminPassword,
		AppID:                 p.AppID,
		BranchName:            p.BranchName,
		BranchPassword:        p.BranchPassword,
		ModIDs:                strings.Join(p.ModIDs, ","),
		ExtraArgs:             p.ExtraArgs,
		GracePeriodMinutes:    p.GracePeriodMinutes,
		CheckForOnlinePlayers: p.CheckForOnlinePlayers,
		SendShutdownMessages:  p.SendShutdownMessages,
		ShutdownReason:        p.ShutdownReason,
		BackupOnShutdown:      p.BackupOnShutdown,
		AutoUpdateEnabled:     p.AutoUpdateEnabled,
		AutoBackupEnabled:     p.AutoBackupEnabled,
		LastStarted:           p.LastStarted,
		LastInstalledVersion:  p.LastInstalledVersion,
		ServerUpdated:         p.ServerUpdated,
		CreatedAt:             p.CreatedAt,
	}
}

func fromRow(r *Profile) domain.Profile {
	var mods []string
	for _, id := range strings.Split(r.ModIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			mods = append(mods, id)
		}
	}

	return domain.Profile{
		ID:                    r.ID,
		Name:                  r.Name,
		InstallDir:            r.InstallDir,
		ServerMap:             r.ServerMap,
		ServerIP:              r.ServerIP,
		PublicIP:              r.PublicIP,
		ServerPort:            r.ServerPort,
		QueryPort:             r.QueryPort,
		MaxPlayers:            r.MaxPlayers,
		RconEnabled:           r.RconEnabled,
		RconPort:              r.RconPort,
		AdminPassword:         r.AdminPassword,
		AppID:                 r.AppID,
		BranchName:            r.BranchName,
		BranchPassword:        r.BranchPassword,
		ModIDs:                mods,
		ExtraArgs:             r.ExtraArgs,
		GracePeriodMinutes:    r.GracePeriodMinutes,
		CheckForOnlinePlayers: r.CheckForOnlinePlayers,
		SendShutdownMessages:  r.SendShutdownMessages,
		ShutdownReason:        r.ShutdownReason,
		BackupOnShutdown:      r.BackupOnShutdown,
		AutoUpdateEnabled:     r.AutoUpdateEnabled,
		AutoBackupEnabled:     r.AutoBackupEnabled,
		LastStarted:           r.LastStarted,
		LastInstalledVersion:  r.LastInstalledVersion,
		ServerUpdated:         r.ServerUpdated,
		CreatedAt:             r.CreatedAt,
	}
}

func (s *GormStore) SaveProfile(p *domain.Profile) error {
	return s.db.Create(toRow(p)).Error
}

// UpdateProfile overwrites every column, including zero values.
func (s *GormStore) UpdateProfile(p *domain.Profile) error {
	result := s.db.Save(toRow(p))
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (s *GormStore) ListProfiles() ([]domain.Profile, error) {
	var rows []Profile
	if err := s.db.Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}

	profiles := make([]domain.Profile, 0, len(rows))
	for i := range rows {
		profiles = append(profiles, fromRow(&rows[i]))
	}
	return profiles, nil
}

func (s *GormStore) GetProfileByID(id string) (*domain.Profile, error) {
	var row Profile
	result := s.db.First(&row, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying profile: %w", result.Error)
	}

	p := fromRow(&row)
	return &p, nil
}

func (s *GormStore) DeleteProfile(id string) error {
	return s.db.Delete(&Profile{}, "id = ?", id).Error
}

// MergeProfile writes back only the whitelisted orchestration fields.
func (s *GormStore) MergeProfile(id string, fields domain.MergeFields) error {
	if fields.Empty() {
		return errors.New("no fields to update")
	}

	updates := make(map[string]interface{})
	if fields.LastInstalledVersion != nil {
		updates["last_installed_version"] = *fields.LastInstalledVersion
	}
	if fields.LastStarted != nil {
		updates["last_started"] = *fields.LastStarted
	}
	if fields.ServerUpdated != nil {
		updates["server_updated"] = *fields.ServerUpdated
	}

	return s.db.Model(&Profile{}).Where("id = ?", id).Updates(updates).Error
}

var ErrSettingNotFound = errors.New("setting not found")

func (s *GormStore) GetSetting(key string) (string, error) {
	var setting Setting
	result := s.db.First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSettingNotFound, key)
		}
		return "", result.Error
	}
	return setting.Value, nil
}

func (s *GormStore) SetSetting(key string, value string) error {
	var setting Setting
	result := s.db.First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return s.db.Create(&Setting{Key: key, Value: value}).Error
		}
		return result.Error
	}

	return s.db.Model(&setting).Update("value", value).Error
}
