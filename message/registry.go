package message

// registered lists every message type this build knows about. Ids are not
// assigned here — NewFactoryFrom sorts by MsgName() and numbers from 1,
// deterministically. Adding a new message type is just adding one line
// here; adding or removing one renumbers every type whose name sorts after
// it, so every node of a cluster must be built with the same set.
func registered() []func() TypedMessage {
	return []func() TypedMessage{
		func() TypedMessage { return &RpcMessageFRequest{} },
		func() TypedMessage { return &RpcMessageFResponse{} },
		func() TypedMessage { return &RpcMessageFNotify{} },
		func() TypedMessage { return &RpcForwardMessageBRequest{} },
		func() TypedMessage { return &RpcForwardMessageBResponse{} },
		func() TypedMessage { return &RpcForwardMessageBNotify{} },
		func() TypedMessage { return &NodeRegisterBRequest{} },
		func() TypedMessage { return &NodeRegisterBResponse{} },
		func() TypedMessage { return &NodeJoinedBNotify{} },
		func() TypedMessage { return &NodeLeftBNotify{} },
		func() TypedMessage { return &HeartbeatBNotify{} },
		func() TypedMessage { return &ChatEchoBRequest{} },
		func() TypedMessage { return &ChatEchoBResponse{} },
	}
}
