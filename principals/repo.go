package principals

type Repo interface {
	Upsert(principal *Principal) error
	Delete(username string) error
	GetByUsername(username string) (*Principal, error)
	GetByID(id string) (*Principal, error)
	List(offset, limit int) ([]*Principal, error)
	SetLocked(username string, locked bool) error
	SetLastLogin(username string) error
}
