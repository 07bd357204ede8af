package domain

type ProfileRepository interface {
	SaveProfile(p *Profile) error
	UpdateProfile(p *Profile) error
	ListProfiles() ([]Profile, error)
	GetProfileByID(id string) (*Profile, error)
	DeleteProfile(id string) error
	MergeProfile(id string, fields MergeFields) error
}

type SettingRepository interface {
	GetSetting(key string) (string, error)
	SetSetting(key string, value string) error
}

type Repository interface {
	ProfileRepository
	SettingRepository
}
