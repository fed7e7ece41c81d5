package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleet-track/internal/fleet/model"
)

// fakeStore backs every store interface with in-memory slices, preserving
// insertion order the way storage order does.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]model.User
	drivers       []model.Driver
	vehicles      []model.Vehicle
	samples       []model.LocationSample
	notifications map[string]model.Notification

	usersErr     error
	vehiclesErr  error
	locationsErr error

	notifCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]model.User),
		notifications: make(map[string]model.Notification),
	}
}

func (f *fakeStore) FindUserByID(_ context.Context, id string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usersErr != nil {
		return model.User{}, f.usersErr
	}
	u, ok := f.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) FindDriverByID(_ context.Context, id string) (model.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.drivers {
		if d.ID == id {
			return d, nil
		}
	}
	return model.Driver{}, ErrNotFound
}

func (f *fakeStore) FindDriversByAdmin(_ context.Context, adminID string) ([]model.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Driver
	for _, d := range f.drivers {
		if d.AdminID == adminID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) FindVehicleByAssignedDriver(_ context.Context, driverID string) (model.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vehiclesErr != nil {
		return model.Vehicle{}, f.vehiclesErr
	}
	var matches []model.Vehicle
	for _, v := range f.vehicles {
		if v.AssignedDriverID != nil && *v.AssignedDriverID == driverID {
			matches = append(matches, v)
		}
	}
	if len(matches) == 0 {
		return model.Vehicle{}, ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches[0], nil
}

func (f *fakeStore) UpdateVehiclePosition(_ context.Context, vehicleID string, lat, lon float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.vehicles {
		if f.vehicles[i].ID == vehicleID {
			ts := at
			f.vehicles[i].Latitude = &lat
			f.vehicles[i].Longitude = &lon
			f.vehicles[i].LastUpdate = &ts
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) CreateLocationSample(_ context.Context, sample model.LocationSample) (model.LocationSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locationsErr != nil {
		return model.LocationSample{}, f.locationsErr
	}
	f.samples = append(f.samples, sample)
	return sample, nil
}

func (f *fakeStore) ListLocationsForAdmin(_ context.Context, adminID string) ([]model.LocationSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locationsErr != nil {
		return nil, f.locationsErr
	}

	fleet := make(map[string]bool)
	for _, d := range f.drivers {
		if d.AdminID != adminID {
			continue
		}
		for _, v := range f.vehicles {
			if v.AssignedDriverID != nil && *v.AssignedDriverID == d.ID {
				fleet[v.ID] = true
			}
		}
	}

	latest := make(map[string]model.LocationSample)
	for _, s := range f.samples {
		if !fleet[s.VehicleID] {
			continue
		}
		if cur, ok := latest[s.VehicleID]; !ok || s.Timestamp.After(cur.Timestamp) {
			latest[s.VehicleID] = s
		}
	}

	out := make([]model.LocationSample, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (f *fakeStore) FindOrCreateNotification(_ context.Context, driverID string) (model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifCalls++
	if n, ok := f.notifications[driverID]; ok {
		return n, nil
	}
	n := model.Notification{
		ID:        "notif-" + driverID,
		DriverID:  driverID,
		Status:    model.NotificationUnassigned,
		CreatedAt: time.Now(),
	}
	f.notifications[driverID] = n
	return n, nil
}

func strPtr(s string) *string { return &s }
