package domain

import "time"

// TriggerFile is a listed workflow definition object
type TriggerFile struct {
	URI           string    `json:"uri"`
	ContainerName string    `json:"container_name"`
	Name          string    `json:"name"`
	LastModified  time.Time `json:"last_modified"`
}

// Account identifies the storage account behind a gateway
type Account struct {
	Name      string `json:"name"`
	Authority string `json:"authority"`
}
