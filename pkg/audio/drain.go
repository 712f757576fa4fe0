package audio

// Drain reads from ch until it is closed, discarding all values. Use it after
// [Stream.Close] so the producer goroutine is never left blocked on a send.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
