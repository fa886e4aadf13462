package artnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Haba1234/go-artnet"

	"webdmx/internal/controller"
	"webdmx/internal/dmx"
	"webdmx/internal/logger"
)

// discoveryInterval is how often the visible nodes are logged.
const discoveryInterval = 30 * time.Second

// ArtNet is transport for the ArtNet protocol (DMX over UDP/IP). It
// implements controller.LightingController for one universe.
type ArtNet struct {
	logger      logger.Logger
	sender      *artnet.Controller
	address     artnet.Address
	sendTrigger chan dmx.Frame
	cache       *controller.Cached
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewController returns an art-net controller bound to the interface found
// inside network.
func NewController(log logger.Logger, network string, universe uint16) (*ArtNet, error) {
	ip, err := FindArtNetIP(network)
	if err != nil {
		return nil, fmt.Errorf("failed to find the art-net IP: %w", err)
	}

	if len(ip) == 0 {
		return nil, errors.New("failed to find the art-net IP: No interface found")
	}

	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hostname: %w", err)
	}

	host = strings.ToLower(strings.Split(host, ".")[0])
	log.With(logger.Fields{"module": "art-net"}).Infof("Using ArtNet IP %s and hostname %s", ip.String(), host)

	senderLogger := artnet.NewDefaultLogger("info")

	return &ArtNet{
		logger:      log,
		sender:      artnet.NewController(host, ip, senderLogger),
		address:     universeToAddress(universe),
		sendTrigger: make(chan dmx.Frame, 100),
		cache:       controller.NewCached(nil),
	}, nil
}

// Start the ArtNet.
func (c *ArtNet) Start(ctx context.Context) error {
	if err := c.sender.Start(); err != nil {
		return fmt.Errorf("failed to start Controller: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go c.sendBackground(ctx)
	go c.debugDevices(ctx)
	return nil
}

// Stop the ArtNet.
func (c *ArtNet) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.sender.Stop()
}

// Commit queues the frame for the background sender.
func (c *ArtNet) Commit(ctx context.Context, frame dmx.Frame) error {
	select {
	case c.sendTrigger <- frame:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", controller.ErrTransport, ctx.Err())
	}
	return c.cache.Commit(ctx, frame)
}

// Fetch returns the last committed frame: Art-Net output is not read back.
func (c *ArtNet) Fetch(ctx context.Context) (dmx.Frame, error) {
	return c.cache.Fetch(ctx)
}

func (c *ArtNet) sendBackground(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.sendTrigger:
			c.logger.With(logger.Fields{"module": "art-net"}).Debugf("DMX. Отправка в контроллер по адресу %s", c.address.String())
			c.sender.SendDMXToAddress(frame, c.address)
		}
	}
}

// universeToAddress converts a dmx universe to art-net address
// universe: старший байт - Net, младший байт - SubUni.
func universeToAddress(universe uint16) artnet.Address {
	v := make([]uint8, 2)
	binary.BigEndian.PutUint16(v, universe)

	return artnet.Address{
		Net:    v[0],
		SubUni: v[1],
	}
}

// NodeToString returns a string representation of the given Node.
func NodeToString(n *artnet.ControlledNode) string {
	var inputs, outputs []string
	for _, p := range n.Node.InputPorts {
		inputs = append(inputs, fmt.Sprintf("%s: %s", p.Address.String(), p.Type.String()))
	}

	for _, p := range n.Node.OutputPorts {
		outputs = append(outputs, fmt.Sprintf("%s: %s", p.Address.String(), p.Type.String()))
	}

	return fmt.Sprintf(
		" | IP=%s name=%q type=%q manufacturer=%q desc=%q inputs=%q outputs=%q",
		n.UDPAddress.String(), n.Node.Name, n.Node.Type,
		n.Node.Manufacturer, n.Node.Description,
		strings.Join(inputs, "; "), strings.Join(outputs, "; "),
	)
}

func (c *ArtNet) debugDevices(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(discoveryInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			nodes := make([]string, 0, len(c.sender.Nodes))
			for _, n := range c.sender.Nodes {
				nodes = append(nodes, NodeToString(n))
			}
			c.logger.With(logger.Fields{"module": "art-net"}).Debugf("Currently %d devices are registered: %v", len(nodes), nodes)
		}
	}
}
