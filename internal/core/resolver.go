package core

// resolveTrack locates a publication of the wanted kind on a live
// connection. Backend versions drift in which collection carries the
// local publications, so the lookup tries a fixed order of collections
// and returns the first match. Call sites treat a miss as a no-op.
func resolveTrack(conn MediaConn, kind TrackKind) (TrackPublication, bool) {
	if conn == nil {
		return nil, false
	}
	collections := [][]TrackPublication{
		conn.AudioPublications(),
		conn.PublishedTracks(),
		conn.TrackPublications(),
	}
	for _, pubs := range collections {
		for _, pub := range pubs {
			if pub != nil && pub.Kind() == kind {
				return pub, true
			}
		}
	}
	return nil, false
}
