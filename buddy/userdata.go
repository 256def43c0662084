package buddy

// SetUserData attaches an arbitrary value to a live allocation. It is reported by
// VisitAllRegions, PrintDetailedMap and the unreleased-memory log on Close.
func (a *Allocator) SetUserData(block []byte, userData any) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	offset, err := a.recordOffset(block)
	if err != nil {
		return err
	}

	record, _ := a.records.Get(offset)
	record.userData = userData
	a.records.Put(offset, record)

	return nil
}

// UserData returns the value attached to a live allocation with SetUserData
func (a *Allocator) UserData(block []byte) (any, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	offset, err := a.recordOffset(block)
	if err != nil {
		return nil, err
	}

	record, _ := a.records.Get(offset)
	return record.userData, nil
}

func (a *Allocator) recordOffset(block []byte) (int, error) {
	dataOffset, err := a.dataOffset(block)
	if err != nil {
		return 0, err
	}

	offset, _, err := a.liveBlock(dataOffset)
	return offset, err
}
