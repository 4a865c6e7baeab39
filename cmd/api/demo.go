package main

import (
	"time"

	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/store"
)

// demoInstance is the gateway instance the in-memory demo tenant answers on.
const demoInstance = "demo"

func seedDemoTenant(mem *store.Memory) {
	weekdays := []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
	mem.SeedTenant(store.Tenant{ID: "demo", Name: "Salão Demo", Instance: demoInstance},
		[]scheduling.Professional{
			{ID: "demo-ana", TenantID: "demo", Name: "Ana", Active: true, WorkDays: weekdays, WorkStart: scheduling.NewClock(9, 0), WorkEnd: scheduling.NewClock(18, 0)},
			{ID: "demo-bia", TenantID: "demo", Name: "Beatriz", Active: true, WorkDays: weekdays, WorkStart: scheduling.NewClock(10, 0), WorkEnd: scheduling.NewClock(19, 0)},
		},
		[]scheduling.Service{
			{ID: "demo-corte", TenantID: "demo", Name: "Corte", DurationMinutes: 30},
			{ID: "demo-escova", TenantID: "demo", Name: "Escova", DurationMinutes: 60},
			{ID: "demo-manicure", TenantID: "demo", Name: "Manicure", DurationMinutes: 45},
		},
	)
}
