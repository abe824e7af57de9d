package repofake

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-cas-server/principals"
)

var _ principals.Repo = (*FakePrincipalRepo)(nil)

type FakePrincipalRepo struct {
	principals  map[string]*principals.Principal
	usernameIDs map[string]string // username to principal id
	lock        sync.RWMutex
}

func NewFakePrincipalRepo() *FakePrincipalRepo {
	return &FakePrincipalRepo{
		principals:  make(map[string]*principals.Principal),
		usernameIDs: make(map[string]string),
	}
}

func (pr *FakePrincipalRepo) Upsert(principal *principals.Principal) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	if principal.ID == "" {
		principal.ID = uuid.New().String()
	}
	pr.principals[principal.ID] = principal
	pr.usernameIDs[principal.Username] = principal.ID
	return nil
}

func (pr *FakePrincipalRepo) Delete(username string) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	id, ok := pr.usernameIDs[username]
	if !ok {
		return errors.New("not found")
	}
	delete(pr.usernameIDs, username)
	delete(pr.principals, id)
	return nil
}

func (pr *FakePrincipalRepo) GetByUsername(username string) (*principals.Principal, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	id, ok := pr.usernameIDs[username]
	if !ok {
		return nil, errors.New("not found")
	}
	principal, ok := pr.principals[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *principal
	return &copied, nil
}

func (pr *FakePrincipalRepo) GetByID(id string) (*principals.Principal, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	principal, ok := pr.principals[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *principal
	return &copied, nil
}

func (pr *FakePrincipalRepo) List(offset, limit int) ([]*principals.Principal, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	all := make([]*principals.Principal, 0, len(pr.principals))
	for _, p := range pr.principals {
		copied := *p
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (pr *FakePrincipalRepo) SetLocked(username string, locked bool) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	id, ok := pr.usernameIDs[username]
	if !ok {
		return errors.New("not found")
	}
	pr.principals[id].Locked = locked
	return nil
}

func (pr *FakePrincipalRepo) SetLastLogin(username string) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	id, ok := pr.usernameIDs[username]
	if !ok {
		return errors.New("not found")
	}
	pr.principals[id].LastLogin = time.Now()
	return nil
}
