package dto

type UpdateBookingStatusDTO struct {
	Status string `json:"status" binding:"required"`
}
