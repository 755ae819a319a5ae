package repository

// Models lists every persistence model, in dependency order, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&EventModel{},
		&PhotoModel{},
		&CouponModel{},
		&CouponUsageModel{},
		&OrderModel{},
	}
}
