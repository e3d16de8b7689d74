package memory

import (
	"context"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

// ProfileDirectory stands in for the collaborator-owned offer and profile tables.
type ProfileDirectory struct {
	s *Store
}

func (d *ProfileDirectory) PutOffer(offer ports.Offer) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.offers[offer.ID] = offer
}

func (d *ProfileDirectory) PutInfluencer(account ports.InfluencerAccount) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.influencers[account.ID] = account
}

func (d *ProfileDirectory) PutMerchant(merchant ports.Merchant) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.merchants[merchant.ID] = merchant
}

func (d *ProfileDirectory) GetOffer(_ context.Context, offerID string) (ports.Offer, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	offer, ok := d.s.offers[offerID]
	if !ok {
		return ports.Offer{}, domain.ErrOfferNotFound
	}
	return offer, nil
}

func (d *ProfileDirectory) GetInfluencerAccount(_ context.Context, influencerID string) (ports.InfluencerAccount, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	account, ok := d.s.influencers[influencerID]
	if !ok {
		return ports.InfluencerAccount{}, domain.ErrNotFound
	}
	return account, nil
}

func (d *ProfileDirectory) GetMerchant(_ context.Context, merchantID string) (ports.Merchant, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	merchant, ok := d.s.merchants[merchantID]
	if !ok {
		return ports.Merchant{}, domain.ErrNotFound
	}
	return merchant, nil
}

func (d *ProfileDirectory) SetMerchantCustomerID(_ context.Context, merchantID, customerID string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	merchant, ok := d.s.merchants[merchantID]
	if !ok {
		return domain.ErrNotFound
	}
	merchant.CustomerID = customerID
	d.s.merchants[merchantID] = merchant
	return nil
}
