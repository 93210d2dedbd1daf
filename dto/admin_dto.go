package dto

type BlockUserDTO struct {
	Blocked *bool `json:"blocked" binding:"required"`
}

type SetRoleDTO struct {
	Role string `json:"role" binding:"required"`
}
