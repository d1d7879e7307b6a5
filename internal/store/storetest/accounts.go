package storetest

import (
	"context"
	"sort"
	"time"

	"storefront/internal/models"
)

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.d.users {
		if existing.Username == u.Username {
			return conflict("user", u.Username)
		}
	}
	u.ID = m.nextID()
	u.CreatedAt = time.Now()
	m.d.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.d.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.d.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, notFound("user", username)
}

func (m *Memory) CreateToken(ctx context.Context, t *models.AuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt = time.Now()
	m.d.tokens[t.Key] = *t
	return nil
}

func (m *Memory) GetUserByToken(ctx context.Context, key string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.d.tokens[key]
	if !ok {
		return nil, notFound("token", "")
	}
	u, ok := m.d.users[t.UserID]
	if !ok || !u.IsActive {
		return nil, notFound("user", t.UserID)
	}
	return &u, nil
}

func (m *Memory) DeleteToken(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("DeleteToken"); err != nil {
		return err
	}
	delete(m.d.tokens, key)
	return nil
}

// SetStaff is a test helper that grants or revokes staff rights.
func (m *Memory) SetStaff(userID int64, staff bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.d.users[userID]
	u.IsStaff = staff
	m.d.users[userID] = u
}

func (m *Memory) GetProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.d.profiles[userID]
	if !ok {
		return nil, notFound("profile for user", userID)
	}
	return &p, nil
}

func (m *Memory) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.d.profiles[p.UserID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.d.profiles[p.UserID] = *p
	return nil
}

func (m *Memory) AddToWishlist(ctx context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.d.wishlist[userID] == nil {
		m.d.wishlist[userID] = map[int64]time.Time{}
	}
	if _, ok := m.d.wishlist[userID][productID]; !ok {
		m.d.wishlist[userID][productID] = time.Now()
	}
	return nil
}

func (m *Memory) RemoveFromWishlist(ctx context.Context, userID, productID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.d.wishlist[userID][productID]; !ok {
		return false, nil
	}
	delete(m.d.wishlist[userID], productID)
	return true, nil
}

func (m *Memory) ListWishlist(ctx context.Context, userID int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for productID := range m.d.wishlist[userID] {
		if p, ok := m.d.products[productID]; ok {
			out = append(out, m.decorate(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListReviews(ctx context.Context, productID int64) ([]models.ProductReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ProductReview{}
	for _, r := range m.d.reviews {
		if r.ProductID == productID && r.IsApproved {
			r.Username = m.d.users[r.UserID].Username
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) CreateReview(ctx context.Context, r *models.ProductReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.d.reviews {
		if existing.ProductID == r.ProductID && existing.UserID == r.UserID {
			return conflict("review for product", r.ProductID)
		}
	}
	r.ID = m.nextID()
	r.CreatedAt = time.Now()
	m.d.reviews[r.ID] = *r
	return nil
}

func (m *Memory) HasPurchased(ctx context.Context, userID, productID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.d.orderItems {
		if item.ProductID != productID {
			continue
		}
		o := m.d.orders[item.OrderID]
		if o.UserID == userID && o.Status != models.OrderStatusCancelled {
			return true, nil
		}
	}
	return false, nil
}
