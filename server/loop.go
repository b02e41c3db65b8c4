package server

// run 房间协程：逐条处理命令，join / update / leave 不会交错修改状态
func (r *Room) run() {
	r.log.Infow("room started", "maze_size", r.layout.Size, "maze_seed", r.layout.Seed)
	defer func() {
		r.closeMembers()
		close(r.done)
		r.log.Infow("room stopped")
	}()

	for {
		// A stop requested while handling the previous command wins over
		// anything still queued.
		select {
		case <-r.quit:
			return
		default:
		}

		select {
		case <-r.quit:
			return
		case cmd := <-r.inbox:
			// updates recorded before cmd was queued are applied first
			r.drainUpdates()
			r.handle(cmd)
		case <-r.wake:
			r.drainUpdates()
		}
	}
}
