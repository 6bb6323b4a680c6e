// Package schedule defines when recurring maintenance work runs.
//
// This package includes:
//   - Schedule interface consumed by the sweep package
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() for cron expression-based schedules
package schedule
