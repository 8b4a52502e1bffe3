package models

import "time"

type User struct {
	ID    string `json:"id" bson:"_id"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
	// CPF/CNPJ forwarded to the payment provider on customer creation.
	Document string `json:"document,omitempty" bson:"document,omitempty"`
	Phone    string `json:"phone,omitempty" bson:"phone,omitempty"`
	// Provider-side customer id, cached on first gateway use.
	GatewayCustomerID string    `json:"gatewayCustomerId,omitempty" bson:"gatewayCustomerId,omitempty"`
	CreatedAt         time.Time `json:"createdAt" bson:"createdAt"`
}

type Address struct {
	ID         string `json:"id" bson:"_id"`
	UserID     string `json:"userId" bson:"userId"`
	Street     string `json:"street" bson:"street"`
	Number     string `json:"number" bson:"number"`
	Complement string `json:"complement,omitempty" bson:"complement,omitempty"`
	District   string `json:"district" bson:"district"`
	City       string `json:"city" bson:"city"`
	State      string `json:"state" bson:"state"`
	PostalCode string `json:"postalCode" bson:"postalCode"`
}
