package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/socketbroker/socketbroker/message"
	"github.com/socketbroker/socketbroker/queue"
)

func TestConnectionRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()

	serverInbound := queue.New[message.OwnedMessage[byte]]()
	clientInbound := queue.New[message.OwnedMessage[byte]]()

	server := New[byte](ServerSide, serverConn, serverInbound, nil, nil)
	client := New[byte](ClientSide, clientConn, clientInbound, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go server.Run(ctx)
	go client.Run(ctx)

	msg := message.New[byte](7)
	require.NoError(t, message.Push(&msg, uint32(99)))
	client.Send(msg)

	serverInbound.Wait(ctx)
	owned, ok := serverInbound.PopFront()
	require.True(t, ok)
	require.Equal(t, byte(7), owned.Message.Header.ID)
	require.NotNil(t, owned.Sender, "server-side messages carry a Sender")

	var v uint32
	require.NoError(t, message.Pop(&owned.Message, &v))
	require.Equal(t, uint32(99), v)

	server.Close()
	client.Close()
}

func TestClientSideMessagesHaveNilSender(t *testing.T) {
	serverConn, clientConn := net.Pipe()

	serverInbound := queue.New[message.OwnedMessage[byte]]()
	clientInbound := queue.New[message.OwnedMessage[byte]]()

	server := New[byte](ServerSide, serverConn, serverInbound, nil, nil)
	client := New[byte](ClientSide, clientConn, clientInbound, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)

	server.Send(message.New[byte](1))

	clientInbound.Wait(ctx)
	owned, ok := clientInbound.PopFront()
	require.True(t, ok)
	require.Nil(t, owned.Sender)

	server.Close()
	client.Close()
}

func TestCloseIsIdempotentAndMarksDisconnected(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	inbound := queue.New[message.OwnedMessage[byte]]()
	conn := New[byte](ServerSide, serverConn, inbound, nil, nil)

	require.True(t, conn.IsConnected())
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.False(t, conn.IsConnected())

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done channel should be closed after Close")
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	inbound := queue.New[message.OwnedMessage[byte]]()
	conn := New[byte](ServerSide, serverConn, inbound, nil, nil)
	conn.Close()

	conn.Send(message.New[byte](1))
	require.Zero(t, conn.outbound.Len())
}
