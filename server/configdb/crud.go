package configdb

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

func (c *ConfigDB) CreateQueue(q *Queue) error {
	cfg := q.Config()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("Queue '%v': %w", q.Name, err)
	}
	if q.Name == "" {
		return fmt.Errorf("Queue name may not be empty")
	}
	q.ID = 0
	return c.DB.Create(q).Error
}

func (c *ConfigDB) ListQueues() ([]Queue, error) {
	queues := []Queue{}
	if err := c.DB.Order("id").Find(&queues).Error; err != nil {
		return nil, err
	}
	return queues, nil
}

func (c *ConfigDB) GetQueueByName(name string) (*Queue, error) {
	q := Queue{}
	if err := c.DB.Where("name = ?", name).First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("Queue '%v': %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &q, nil
}

// DeleteQueue deletes the queue, and all cameras that feed it
func (c *ConfigDB) DeleteQueue(id int64) error {
	return c.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Queue{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("Queue %v: %w", id, ErrNotFound)
		}
		return tx.Where("queue_id = ?", id).Delete(&Camera{}).Error
	})
}

func (c *ConfigDB) CreateCamera(cam *Camera) error {
	if cam.Name == "" || cam.Address == "" {
		return fmt.Errorf("Camera name and address may not be empty")
	}
	if cam.IntervalMS <= 0 {
		return fmt.Errorf("Camera '%v' interval must be positive", cam.Name)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		n := int64(0)
		if err := tx.Model(&Queue{}).Where("id = ?", cam.QueueID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("Camera '%v' queue %v: %w", cam.Name, cam.QueueID, ErrNotFound)
		}
		cam.ID = 0
		return tx.Create(cam).Error
	})
}

func (c *ConfigDB) ListCameras() ([]Camera, error) {
	cameras := []Camera{}
	if err := c.DB.Order("id").Find(&cameras).Error; err != nil {
		return nil, err
	}
	return cameras, nil
}

func (c *ConfigDB) CreateAggregator(a *Aggregator) error {
	if a.Name == "" {
		return fmt.Errorf("Aggregator name may not be empty")
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("Aggregator '%v': %w", a.Name, err)
	}
	a.ID = 0
	return c.DB.Create(a).Error
}

func (c *ConfigDB) ListAggregators() ([]Aggregator, error) {
	aggs := []Aggregator{}
	if err := c.DB.Order("id").Find(&aggs).Error; err != nil {
		return nil, err
	}
	return aggs, nil
}
