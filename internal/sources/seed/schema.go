package seed

// File is the top-level structure of a seed YAML file.
type File struct {
	Companies []CompanyDoc `yaml:"companies"`
	Users     []UserDoc    `yaml:"users"`
}

type CompanyDoc struct {
	Name        string     `yaml:"name"`
	Domain      string     `yaml:"domain"`
	Type        string     `yaml:"type,omitempty"`
	Description string     `yaml:"description,omitempty"`
	Watchlist   []EntryDoc `yaml:"watchlist,omitempty"`
}

type EntryDoc struct {
	Type        string `yaml:"type"`
	Value       string `yaml:"value"`
	Description string `yaml:"description,omitempty"`
}

// UserDoc links to a company by its domain.
type UserDoc struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Company  string `yaml:"company,omitempty"`
	Active   *bool  `yaml:"active,omitempty"`
}
